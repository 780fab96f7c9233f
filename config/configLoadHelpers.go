package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatUnknown Format = "unknown"
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
	FormatTOML    Format = "toml"
)

// formatFromFilename returns the format of the file based on the filename extension.
func formatFromFilename(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// formatFromResponse returns the format of the file based on the Content-Type header.
func formatFromResponse(resp *http.Response) Format {
	ct := resp.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "application/json", "text/json":
		return FormatJSON
	case "application/x-toml", "application/toml", "text/x-toml", "text/toml":
		return FormatTOML
	case "application/x-yaml", "application/yaml", "text/x-yaml", "text/yaml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// getReaderFor returns an io.ReadCloser for the given URL or filename.
func getReaderFor(u string) (io.ReadCloser, Format, error) {
	if u == "" {
		return nil, FormatUnknown, fmt.Errorf("empty url")
	}
	uu, err := url.Parse(u)
	if err != nil {
		return nil, FormatUnknown, err
	}
	switch uu.Scheme {
	case "file", "": // we treat an empty scheme as a filename
		r, err := os.Open(uu.Path)
		if err != nil {
			return nil, FormatUnknown, err
		}
		return r, formatFromFilename(uu.Path), nil
	case "http", "https":
		resp, err := http.Get(u)
		if err != nil {
			return nil, FormatUnknown, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, FormatUnknown, fmt.Errorf("fetching %s: unexpected status %s", u, resp.Status)
		}
		format := formatFromResponse(resp)
		// fall back to the path for a hint when the server is vague
		if format == FormatUnknown {
			format = formatFromFilename(uu.Path)
		}
		return resp.Body, format, nil
	default:
		return nil, FormatUnknown, fmt.Errorf("unknown scheme %q", uu.Scheme)
	}
}

func load(r io.Reader, format Format, into any) error {
	switch format {
	case FormatYAML:
		err := yaml.NewDecoder(r).Decode(into)
		if err == io.EOF {
			// an empty file is a valid (empty) config
			return nil
		}
		return err
	case FormatTOML:
		return toml.NewDecoder(r).Decode(into)
	case FormatJSON:
		return json.NewDecoder(r).Decode(into)
	default:
		return fmt.Errorf("unable to determine data format")
	}
}

// loadConfigsInto loads all the named configs into dest in the order they
// are listed. Later files only overwrite the values they name. It returns
// the MD5 hash of the collected configs.
func loadConfigsInto(dest any, locations []string) (string, error) {
	h := md5.New()
	for _, location := range locations {
		location := strings.TrimSpace(location)
		if err := func() error {
			r, format, err := getReaderFor(location)
			if err != nil {
				return err
			}
			defer r.Close()
			rdr := io.TeeReader(r, h)
			if err := load(rdr, format, dest); err != nil {
				return fmt.Errorf("loadConfigsInto unable to load config %s: %w", location, err)
			}
			return nil
		}(); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func loadConfigsIntoMap(dest map[string]any, locations []string) error {
	for _, location := range locations {
		location := strings.TrimSpace(location)
		temp := make(map[string]any)
		if err := func() error {
			r, format, err := getReaderFor(location)
			if err != nil {
				return err
			}
			defer r.Close()
			if err := load(r, format, &temp); err != nil {
				return fmt.Errorf("loadConfigsIntoMap unable to load config %s: %w", location, err)
			}
			return nil
		}(); err != nil {
			return err
		}
		mergeMaps(dest, temp)
	}
	return nil
}

// mergeMaps merges src into dest, recursing into nested maps so that a
// later file can override a single key of a section.
func mergeMaps(dest, src map[string]any) {
	for k, v := range src {
		vm, isMap := v.(map[string]any)
		existing, hasMap := dest[k].(map[string]any)
		if isMap && hasMap {
			mergeMaps(existing, vm)
			continue
		}
		dest[k] = v
	}
}

// readConfigInto reads the config from the given locations, applies defaults
// to zero values, and then applies command line options.
func readConfigInto(dest any, locations []string, opts *CmdEnv) (string, error) {
	hash, err := loadConfigsInto(dest, locations)
	if err != nil {
		return hash, err
	}

	if err := defaults.Set(dest); err != nil {
		return hash, fmt.Errorf("readConfigInto unable to apply defaults: %w", err)
	}

	if opts == nil {
		return hash, nil
	}

	if err := opts.ApplyTags(reflect.ValueOf(dest)); err != nil {
		return hash, fmt.Errorf("readConfigInto unable to apply command line options: %w", err)
	}

	return hash, nil
}
