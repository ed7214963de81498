package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is used when neither Load nor the dotenv file name a settings file.
	DefaultPath = "./settings.yaml"
	// EnvsKey is the reserved node receiving the dotenv pairs.
	EnvsKey = "envs"
	// SettingsFileVar names the settings file from within the dotenv file.
	SettingsFileVar = "SETTINGS_FILE"
)

// processEnv holds the process variables consulted before any file is read.
type processEnv struct {
	EnvFile string `env:"ENVFILE" envDefault:".env"`
}

// Option configures a Store.
type Option func(*Store)

// WithEnvFile reads dotenv pairs from path instead of $ENVFILE.
func WithEnvFile(path string) Option {
	return func(s *Store) {
		s.envFile = path
	}
}

// WithDefaultPath overrides DefaultPath.
func WithDefaultPath(path string) Option {
	return func(s *Store) {
		s.defaultPath = path
	}
}

// Store owns the live configuration tree and the snapshot derived from it.
//
// A Store is not safe for concurrent use; callers sharing one between
// goroutines must serialise Load, Set and Conf themselves.
type Store struct {
	envFile     string
	defaultPath string

	path string
	live *yaml.Node
	envs map[string]string
	conf Value
}

// New returns an empty store. Conf returns an empty node until Load succeeds.
func New(opts ...Option) *Store {
	s := &Store{
		defaultPath: DefaultPath,
		live:        newDocument(),
		envs:        map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.conf = newSnapshot(s.root())
	return s
}

// Load reads the settings file and overlays the dotenv pairs under "envs".
// The file is path when given, else SETTINGS_FILE from the dotenv file,
// else the default path.
func (s *Store) Load(path string) error {
	envs, err := s.readEnvFile()
	if err != nil {
		return err
	}

	if path == "" {
		path = envs[SettingsFileVar]
	}
	if path == "" {
		path = s.defaultPath
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: settings file was not found at %s", ErrConfiguration, abs)
		}
		return fmt.Errorf("%w: read settings file %s: %w", ErrConfiguration, abs, err)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return fmt.Errorf("%w: parse settings file %s: %w", ErrConfiguration, abs, err)
	}
	root := doc.Content[0]

	envsNode := resolveAlias(lookup(root, EnvsKey))
	switch {
	case envsNode == nil || isNull(envsNode):
		envsNode = newMapping()
		setChild(root, EnvsKey, envsNode)
	case envsNode.Kind != yaml.MappingNode:
		return fmt.Errorf("%w: %q in %s must be a mapping", ErrConfiguration, EnvsKey, abs)
	}

	keys := make([]string, 0, len(envs))
	for key := range envs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		setChild(envsNode, key, stringNode(envs[key]))
	}

	s.path = path
	s.live = doc
	s.envs = envs
	s.conf = newSnapshot(root)
	return nil
}

// Set assigns value to the dotted path, walking existing nodes only: every
// segment but the last must already be a node. The rebuilt snapshot is returned.
func (s *Store) Set(name string, value any) (Value, error) {
	parts := strings.Split(name, ".")
	for _, part := range parts {
		if part == "" {
			return s.conf, fmt.Errorf("%w: invalid settings path %q", ErrConfiguration, name)
		}
	}

	parent := s.root()
	for i, key := range parts[:len(parts)-1] {
		next := lookup(parent, key)
		if !isMapping(next) {
			return s.conf, fmt.Errorf("%w: cannot set %q: %q is not a settings node",
				ErrConfiguration, name, strings.Join(parts[:i+1], "."))
		}
		parent = resolveAlias(next)
	}

	node, err := encodeNode(value)
	if err != nil {
		return s.conf, fmt.Errorf("%w: encode value for %q: %w", ErrConfiguration, name, err)
	}
	setChild(parent, parts[len(parts)-1], node)

	s.conf = newSnapshot(s.root())
	return s.conf, nil
}

// Conf returns the current snapshot.
func (s *Store) Conf() Value {
	return s.conf
}

// Path returns the settings file used by the last successful Load.
func (s *Store) Path() string {
	return s.path
}

// Envs returns a copy of the dotenv pairs applied by the last successful Load.
func (s *Store) Envs() map[string]string {
	out := make(map[string]string, len(s.envs))
	for k, v := range s.envs {
		out[k] = v
	}
	return out
}

// Dump renders the live tree as YAML.
func (s *Store) Dump() ([]byte, error) {
	data, err := yaml.Marshal(s.live)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return data, nil
}

func (s *Store) root() *yaml.Node {
	return s.live.Content[0]
}

func (s *Store) readEnvFile() (map[string]string, error) {
	path := s.envFile
	if path == "" {
		var proc processEnv
		if err := env.Parse(&proc); err != nil {
			return nil, fmt.Errorf("%w: read process environment: %w", ErrConfiguration, err)
		}
		path = proc.EnvFile
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: read env file %s: %w", ErrConfiguration, path, err)
	}
	return values, nil
}

// parseDocument decodes data into a document whose root is a mapping.
// An empty document yields an empty mapping.
func parseDocument(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return newDocument(), nil
	}
	root := resolveAlias(doc.Content[0])
	if isNull(root) {
		doc.Content[0] = newMapping()
		return &doc, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("document root must be a mapping")
	}
	return &doc, nil
}
