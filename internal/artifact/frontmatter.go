package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the blob did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("artifact: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("artifact: malformed frontmatter")
	// ErrChecksumMismatch indicates the body does not match its recorded digest.
	ErrChecksumMismatch = errors.New("artifact: checksum mismatch")
)

const timeLayout = time.RFC3339Nano

// Header is the metadata carried in front of every artifact body.
type Header struct {
	SessionID   string
	Kind        Kind
	ContentType string
	RunToken    string
	CreatedAt   time.Time
	Checksum    string
	Notes       map[string]string
}

type envelope struct {
	Briefsmith envelopeHeader `yaml:"briefsmith"`
}

type envelopeHeader struct {
	Session     string            `yaml:"session"`
	Kind        string            `yaml:"kind"`
	ContentType string            `yaml:"content_type"`
	Run         string            `yaml:"run,omitempty"`
	Created     string            `yaml:"created"`
	Checksum    string            `yaml:"checksum"`
	Notes       map[string]string `yaml:"notes,omitempty"`
}

// Checksum returns the hex SHA-256 digest of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// WriteFrontMatter renders header + body with YAML fences.
func WriteFrontMatter(header Header, body []byte) ([]byte, error) {
	if header.SessionID == "" || header.Kind == "" {
		return nil, fmt.Errorf("artifact: header missing session or kind")
	}
	env := envelope{Briefsmith: envelopeHeader{
		Session:     header.SessionID,
		Kind:        string(header.Kind),
		ContentType: header.ContentType,
		Run:         header.RunToken,
		Created:     header.CreatedAt.UTC().Format(timeLayout),
		Checksum:    header.Checksum,
		Notes:       header.Notes,
	}}
	if env.Briefsmith.Checksum == "" {
		env.Briefsmith.Checksum = Checksum(body)
	}
	data, err := yaml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + len(body) + 16)
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// ParseFrontMatter splits a stored blob into its header and body and verifies
// the body checksum.
func ParseFrontMatter(data []byte) (Header, []byte, error) {
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return Header{}, nil, ErrMissingFrontMatter
	}
	parts := bytes.SplitN(data[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Header{}, nil, ErrMalformedFrontMatter
	}
	var env envelope
	if err := yaml.Unmarshal(parts[0], &env); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %w", ErrMalformedFrontMatter, err)
	}
	meta := env.Briefsmith
	if meta.Session == "" || meta.Kind == "" {
		return Header{}, nil, ErrMalformedFrontMatter
	}
	created, err := time.Parse(timeLayout, meta.Created)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: created: %w", ErrMalformedFrontMatter, err)
	}
	body := parts[1]
	if meta.Checksum != Checksum(body) {
		return Header{}, nil, ErrChecksumMismatch
	}
	return Header{
		SessionID:   meta.Session,
		Kind:        Kind(meta.Kind),
		ContentType: meta.ContentType,
		RunToken:    meta.Run,
		CreatedAt:   created.UTC(),
		Checksum:    meta.Checksum,
		Notes:       meta.Notes,
	}, body, nil
}
