package backup

import (
	"bytes"
	"time"

	"github.com/joho/godotenv"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// ExportEnv writes the credentials of the enabled AI blocks in the
// backend's dotenv layout.
func ExportEnv(doc core.ConfigDocument, now time.Time) (Artifact, error) {
	if now.IsZero() {
		now = time.Now()
	}
	text, err := godotenv.Marshal(core.APIConfigFromDocument(doc))
	if err != nil {
		return Artifact{}, core.ErrInternal("encoding dotenv").WithCause(err)
	}
	return Artifact{
		Filename:    DefaultEnvFilename,
		ContentType: "text/plain",
		Data:        []byte(text + "\n"),
		ExportedAt:  now.UTC(),
	}, nil
}

// ImportEnv parses a dotenv file into a credential map.
func ImportEnv(data []byte) (map[string]string, error) {
	if len(data) > maxImportSize {
		return nil, core.ErrValidation(core.CodeInvalidDocument, "file is too large")
	}
	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidDocument, "file is not a dotenv file").WithCause(err)
	}
	return env, nil
}
