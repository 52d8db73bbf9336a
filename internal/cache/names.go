package cache

import (
	"fmt"
	"strings"
)

// ValidateName 检查 group/key 是否可以直接作为单层文件名使用。
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

func validatePair(group, key string) error {
	if err := ValidateName(group); err != nil {
		return fmt.Errorf("group: %w", err)
	}
	if err := ValidateName(key); err != nil {
		return fmt.Errorf("key: %w", err)
	}
	return nil
}
