package fix

import (
	"bytes"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"m2p/config"
	"m2p/state"
)

const outputExt = ".pptx"

// templateValues holds variables available for output name expansion.
type templateValues struct {
	Context string
	// Name is the input file name without directory or extension.
	Name string
}

func expandTemplate(name config.TemplateFieldName, field, inputName string) (string, error) {
	tmpl, err := template.New(string(name)).Funcs(sprig.FuncMap()).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, templateValues{Context: string(name), Name: inputName}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// buildOutputPath returns constructed output file path/name based on the
// input name, destination directory and configuration. It uses either the
// default naming scheme or user-defined template, cleans the path up and if
// requested transliterates it.
func buildOutputPath(src, dstDir string, env *state.LocalEnv) string {
	inputName := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	defaultFile := cleanPathSegment(inputName, env) + outputExt

	if env.Cfg.Document.OutputNameTemplate == "" {
		return filepath.Join(dstDir, defaultFile)
	}

	expandedName, err := expandTemplate(config.OutputNameTemplateFieldName, env.Cfg.Document.OutputNameTemplate, inputName)
	if err != nil {
		env.Log.Warn("Unable to prepare output filename", zap.Error(err))
		return filepath.Join(dstDir, defaultFile)
	}
	expandedName = filepath.FromSlash(expandedName)
	if strings.TrimSpace(expandedName) == "" {
		return filepath.Join(dstDir, defaultFile)
	}

	return assemblePathWithSubdirs(dstDir, expandedName, env)
}

// assemblePathWithSubdirs takes an expanded template name (which may contain
// path separators for subdirectories) and assembles it into a full output
// path, cleaning and transliterating segments as needed.
func assemblePathWithSubdirs(outDir, expandedName string, env *state.LocalEnv) string {
	pathSegments := splitAndCleanPath(expandedName)

	if len(pathSegments) == 0 {
		return outDir
	}

	fileName := cleanPathSegment(pathSegments[len(pathSegments)-1], env) + outputExt
	if env.NoDirs {
		// drop template subdirectories, keep everything flat in the destination
		return filepath.Join(outDir, fileName)
	}
	dirParts := make([]string, 0, len(pathSegments)+1)
	dirParts = append(dirParts, outDir)

	for _, segment := range pathSegments[:len(pathSegments)-1] {
		dirParts = append(dirParts, cleanPathSegment(segment, env))
	}

	dirParts = append(dirParts, fileName)
	return filepath.Join(dirParts...)
}

func splitAndCleanPath(path string) []string {
	path = strings.TrimSuffix(path, string(filepath.Separator))
	segments := make([]string, 0, 8)

	for head, tail := filepath.Split(path); tail != ""; head, tail = filepath.Split(head) {
		segments = slices.Insert(segments, 0, tail)
		head = strings.TrimSuffix(head, string(filepath.Separator))
		if head == "" {
			break
		}
		path = head
	}

	return segments
}

func cleanPathSegment(segment string, env *state.LocalEnv) string {
	if env.Cfg.Document.FileNameTransliterate {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}
