package library

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/studyhall/internal/model"
)

// ErrMalformedBackup is wrapped by every decoding failure.
var ErrMalformedBackup = errors.New("malformed backup")

// Fingerprint returns the hex BLAKE2b-256 digest of a file's content.
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DecodeBackup parses a backup document. JSON is the native format; files
// named *.yaml or *.yml are read as YAML and may also be a bare list of
// questions.
func DecodeBackup(name string, data []byte) (model.Backup, error) {
	var b model.Backup
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return b, fmt.Errorf("%w: %s: %v", ErrMalformedBackup, name, err)
		}
		if len(node.Content) == 0 {
			return b, nil
		}
		if node.Content[0].Kind == yaml.SequenceNode {
			if err := node.Decode(&b.QuestionBank); err != nil {
				return b, fmt.Errorf("%w: %s: %v", ErrMalformedBackup, name, err)
			}
		} else if err := node.Decode(&b); err != nil {
			return b, fmt.Errorf("%w: %s: %v", ErrMalformedBackup, name, err)
		}
	default:
		if err := json.Unmarshal(bytes.TrimSpace(data), &b); err != nil {
			return b, fmt.Errorf("%w: %s: %v", ErrMalformedBackup, name, err)
		}
	}
	return b, nil
}
