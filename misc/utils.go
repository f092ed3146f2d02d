package misc

import (
	"strings"
)

func TrimUsername(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "@")
}

func IsInList(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
