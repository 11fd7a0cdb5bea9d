package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"esign-orchestrator/core/models"

	"gopkg.in/yaml.v3"
)

// RunSpec represents the YAML run manifest
type RunSpec struct {
	Run RunSpecRun `yaml:"run"`
}

// RunSpecRun represents the run section of the manifest
type RunSpecRun struct {
	StagingID     string        `yaml:"staging_id"`
	Document      string        `yaml:"document"` // path, relative to the manifest
	DocumentType  string        `yaml:"document_type"`
	DocumentName  string        `yaml:"document_name"`
	Signer        RunSpecSigner `yaml:"signer"`
	OperatorEmail string        `yaml:"operator_email"`
	AlsoStamp     bool          `yaml:"also_stamp"`
	QRCode        string        `yaml:"qr_code"`
}

// RunSpecSigner represents the signer block
type RunSpecSigner struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// DecodeRunSpec parses a YAML run manifest without touching the filesystem
func DecodeRunSpec(specYAML string) (*RunSpec, error) {
	var spec RunSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if strings.TrimSpace(spec.Run.StagingID) == "" {
		return nil, fmt.Errorf("run.staging_id is required")
	}
	return &spec, nil
}

// ParseRunSpec parses a YAML run manifest into a run request. The document
// is read from disk only when the manifest names one; paths are resolved
// against baseDir.
func ParseRunSpec(specYAML string, baseDir string) (*models.RunRequest, error) {
	spec, err := DecodeRunSpec(specYAML)
	if err != nil {
		return nil, err
	}

	r := spec.Run
	req := &models.RunRequest{
		StagingID:     strings.TrimSpace(r.StagingID),
		DocumentType:  r.DocumentType,
		DocumentName:  r.DocumentName,
		SignerName:    r.Signer.Name,
		SignerEmail:   r.Signer.Email,
		OperatorEmail: r.OperatorEmail,
		AlsoStamp:     r.AlsoStamp,
		QRCode:        r.QRCode,
	}

	if r.Document != "" {
		path := r.Document
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		req.Document = data
		if req.DocumentName == "" {
			req.DocumentName = filepath.Base(path)
		}
	}

	return req, nil
}

// LoadRunSpec reads and parses a manifest file
func LoadRunSpec(path string) (*models.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseRunSpec(string(data), filepath.Dir(path))
}
