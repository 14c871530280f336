// Package meta loads configuration documents through afs, so that they can
// live on the local file system or any supported storage.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// Service loads documents relative to a base URL
type Service struct {
	fs      afs.Service
	baseURL string
	options []storage.Option
}

// New creates a meta service
func New(fs afs.Service, baseURL string, options ...storage.Option) *Service {
	return &Service{fs: fs, baseURL: baseURL, options: options}
}

// URL resolves location against the base URL
func (s *Service) URL(location string) string {
	if s.baseURL == "" || !url.IsRelative(location) {
		return location
	}
	return url.Join(s.baseURL, location)
}

// Exists reports whether the document exists
func (s *Service) Exists(ctx context.Context, location string) (bool, error) {
	return s.fs.Exists(ctx, s.URL(location), s.options...)
}

// Load reads the document at location, expands ${env.NAME} expressions and
// decodes it into target. The format is chosen by extension: .yaml/.yml,
// .toml or .json.
func (s *Service) Load(ctx context.Context, location string, target interface{}) error {
	URL := s.URL(location)
	data, err := s.fs.DownloadWithURL(ctx, URL, s.options...)
	if err != nil {
		return fmt.Errorf("failed to download %v: %w", URL, err)
	}
	data = []byte(expandEnvExpr(string(data)))
	if err = Decode(path.Ext(url.Path(URL)), data, target); err != nil {
		return fmt.Errorf("failed to decode %v: %w", URL, err)
	}
	return nil
}

// Decode decodes data in the format implied by ext into target.
func Decode(ext string, data []byte, target interface{}) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, target)
	case ".toml":
		return toml.Unmarshal(data, target)
	case ".json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		return decoder.Decode(target)
	}
	return fmt.Errorf("unsupported format: %q", ext)
}
