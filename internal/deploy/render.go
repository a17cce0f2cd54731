package deploy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// renderTemplate parses and executes a template file with missingkey=error,
// so a placeholder without a matching param fails the render instead of
// leaving a literal token in a deployed config.
func renderTemplate(path string, params map[string]string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read template %s: %v", ErrRender, path, err)
	}
	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return "", fmt.Errorf("%w: parse template %s: %v", ErrRender, filepath.Base(path), err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("%w: render %s: %v", ErrRender, filepath.Base(path), err)
	}
	return buf.String(), nil
}

// WriteRendered renders templatePath and installs the result at destPath
// atomically: the text lands in a temp file in the destination directory
// and only a rename makes it active. A failed render never touches an
// existing destination.
func WriteRendered(templatePath, destPath string, params map[string]string, mode os.FileMode) error {
	text, err := renderTemplate(templatePath, params)
	if err != nil {
		return err
	}

	destDir := filepath.Dir(destPath)
	if err := ensureDir(destDir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrRender, destDir, err)
	}

	tmp, err := os.CreateTemp(destDir, filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: temp file in %s: %v", ErrRender, destDir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrRender, tmpName, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %v", ErrRender, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrRender, tmpName, err)
	}

	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: install %s: %v", ErrRender, destPath, err)
	}
	return nil
}
