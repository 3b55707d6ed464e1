package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// loadGlobalEnv merges --env KEY=VALUE pairs with the contents of
// --env-file (one KEY=VALUE per line, blank lines and "#" comments
// skipped), with --env taking precedence on key collision.
func loadGlobalEnv(pairs []string, file string) (map[string]string, error) {
	env := make(map[string]string)

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open env file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				return nil, fmt.Errorf("malformed env-file line: %q", line)
			}
			env[k] = v
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}
	}

	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --env entry: %q", pair)
		}
		env[k] = v
	}

	return env, nil
}
