// utilitários de formatação para headers e mensagens (contagem regressiva).

package guard

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// formatCountdown gera "2h 5min", "12min", "40s". Arredonda para cima.
func formatCountdown(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	secs := int64((d + time.Second - 1) / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60

	switch {
	case h > 0 && m > 0:
		return formatInt64(h) + "h " + formatInt64(m) + "min"
	case h > 0:
		return formatInt64(h) + "h"
	case m > 0 && s > 0 && m < 5:
		return formatInt64(m) + "min " + formatInt64(s) + "s"
	case m > 0:
		return formatInt64(m) + "min"
	}
	return formatInt64(s) + "s"
}
