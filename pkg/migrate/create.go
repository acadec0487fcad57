package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/pressly/goose/v3"
)

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// sqlTemplate keeps both directions wrapped in StatementBegin/End so
// ValidateDir accepts a freshly created file.
var sqlTemplate = template.Must(template.New("goose.sql").Parse(`-- +goose Up
-- +goose StatementBegin
SELECT 'up: {{.CamelName}}';
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 'down: {{.CamelName}}';
-- +goose StatementEnd
`))

// CreateSQLMigration writes <dir>/<UTC timestamp>_<slug>.sql through goose
// and returns the new path.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	before, err := filepath.Glob(filepath.Join(dir, "*_"+slug+".sql"))
	if err != nil {
		return "", err
	}
	if err := goose.CreateWithTemplate(nil, dir, sqlTemplate, slug, "sql"); err != nil {
		return "", fmt.Errorf("create migration %s: %w", slug, err)
	}
	after, err := filepath.Glob(filepath.Join(dir, "*_"+slug+".sql"))
	if err != nil {
		return "", err
	}
	created := difference(after, before)
	if len(created) != 1 {
		return "", fmt.Errorf("expected one new migration for %s, found %d", slug, len(created))
	}
	return created[0], nil
}

func difference(after, before []string) []string {
	seen := make(map[string]bool, len(before))
	for _, p := range before {
		seen[p] = true
	}
	var out []string
	for _, p := range after {
		if !seen[p] {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
