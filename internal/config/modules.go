package config

import (
	_ "github.com/any-hub/stalecache/internal/fetchkind/file"
	_ "github.com/any-hub/stalecache/internal/fetchkind/httpjson"
)
