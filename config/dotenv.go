package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/spf13/viper"
)

// DotEnvFile is the name of the optional variable file read from the working directory.
const DotEnvFile = ".env"

// LoadDotEnv copies the variables of a dotenv file into envRepo.
// Variables that are already set keep their value. A missing file is not an error.
// Keys are upper-cased, as the file is read case-insensitively.
func LoadDotEnv(path string, envRepo env.Repository) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var loaded []string
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if envRepo.Get(name) != "" {
			continue
		}
		if err := envRepo.Set(name, v.GetString(key)); err != nil {
			return loaded, fmt.Errorf("set %s: %w", name, err)
		}
		loaded = append(loaded, name)
	}
	sort.Strings(loaded)

	return loaded, nil
}
