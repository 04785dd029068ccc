package upload

import (
	"github.com/dustin/go-humanize"
)

// FormatBytes 以 1024 为基数格式化字节数，如 "1.5 KiB"。
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
