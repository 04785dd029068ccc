package upload

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Rules 是创建时固定的校验配置。
type Rules struct {
	Accept       []string
	MaxSizeBytes int64 // 0 表示不限制
	MaxFiles     int   // 0 表示不限制
	Multiple     bool
}

// ParseAccept 解析形如 "image/png,image/*,.gif" 的 accept 列表。
func ParseAccept(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// Verdict 是单个候选文件的校验结论，Err 为 nil 表示接受。
type Verdict struct {
	File RawFile
	Err  *ValidationError
}

func (v Verdict) Accepted() bool {
	return v.Err == nil
}

// Validator 对一批候选文件应用类型、大小与数量规则，本身无副作用。
type Validator struct {
	rules Rules
}

func NewValidator(rules Rules) *Validator {
	return &Validator{rules: rules}
}

func (v *Validator) Rules() Rules {
	return v.rules
}

// Validate 按提交顺序逐个判定。registered 是注册表中已占用的名额。
// 单选模式下只考虑批次中的第一个文件。
func (v *Validator) Validate(batch []RawFile, registered int) []Verdict {
	if !v.rules.Multiple && len(batch) > 1 {
		batch = batch[:1]
	}

	verdicts := make([]Verdict, 0, len(batch))
	accepted := 0
	overflow := false
	for _, file := range batch {
		verdict := Verdict{File: file}
		switch {
		case overflow:
			verdict.Err = &ValidationError{File: file.Name, Err: ErrTooManyFiles}
		case !v.acceptsType(file):
			verdict.Err = &ValidationError{File: file.Name, Err: ErrInvalidFileType}
		case v.rules.MaxSizeBytes > 0 && file.size() > v.rules.MaxSizeBytes:
			verdict.Err = &ValidationError{File: file.Name, Err: ErrFileTooLarge}
		case v.maxFiles() > 0 && registered+accepted+1 > v.maxFiles():
			overflow = true
			verdict.Err = &ValidationError{File: file.Name, Err: ErrTooManyFiles}
		default:
			accepted++
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts
}

func (v *Validator) maxFiles() int {
	if !v.rules.Multiple {
		return 1
	}
	return v.rules.MaxFiles
}

func (v *Validator) acceptsType(file RawFile) bool {
	if len(v.rules.Accept) == 0 {
		return true
	}

	fileType := DetectType(file)
	ext := strings.ToLower(filepath.Ext(file.Name))
	for _, pattern := range v.rules.Accept {
		switch {
		case pattern == "*" || pattern == "*/*":
			return true
		case strings.HasPrefix(pattern, "."):
			if ext == pattern {
				return true
			}
		case strings.HasSuffix(pattern, "/*"):
			if strings.HasPrefix(fileType, strings.TrimSuffix(pattern, "*")) {
				return true
			}
		case fileType == pattern:
			return true
		}
	}
	return false
}

// DetectType 优先使用声明的类型，其次按扩展名，最后嗅探内容。
func DetectType(file RawFile) string {
	if declared := normalizeType(file.Type); declared != "" {
		return declared
	}
	if byExt := normalizeType(mime.TypeByExtension(filepath.Ext(file.Name))); byExt != "" {
		return byExt
	}
	if len(file.Data) == 0 {
		return ""
	}
	return normalizeType(mimetype.Detect(file.Data).String())
}

func normalizeType(raw string) string {
	base, _, _ := strings.Cut(raw, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// Accepted 返回被接受的文件，保持提交顺序。
func Accepted(verdicts []Verdict) []RawFile {
	out := make([]RawFile, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Accepted() {
			out = append(out, v.File)
		}
	}
	return out
}

// FirstRejection 返回批次中第一个拒绝原因；全部接受时返回 nil。
func FirstRejection(verdicts []Verdict) error {
	for _, v := range verdicts {
		if v.Err != nil {
			return v.Err
		}
	}
	return nil
}
