// utilitário pequeno para formatação de valores numéricos em headers,
// sem puxar fmt só para isso.

package ratelimit

import "strconv"

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }
