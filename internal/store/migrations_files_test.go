package store

import (
	"io/fs"
	"regexp"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	for _, dialect := range []Dialect{DialectPostgres, DialectSQLite} {
		migrations, err := Migrations(dialect)
		if err != nil {
			t.Fatalf("%s: %v", dialect, err)
		}
		entries, err := fs.ReadDir(migrations, ".")
		if err != nil {
			t.Fatalf("read %s migrations: %v", dialect, err)
		}

		pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
		byVersion := map[string]map[string]bool{}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			match := pattern.FindStringSubmatch(name)
			if match == nil {
				continue
			}
			version := match[1]
			direction := match[2]
			if byVersion[version] == nil {
				byVersion[version] = map[string]bool{}
			}
			if byVersion[version][direction] {
				t.Fatalf("%s: duplicate %s migration file for version %s", dialect, direction, version)
			}
			byVersion[version][direction] = true
		}

		if len(byVersion) == 0 {
			t.Fatalf("%s: no migrations discovered", dialect)
		}

		for version, dirs := range byVersion {
			if !dirs["up"] || !dirs["down"] {
				t.Fatalf("%s: version %s must include both up and down files", dialect, version)
			}
		}
	}
}

func TestDialectsShipTheSameVersions(t *testing.T) {
	list := func(dialect Dialect) []string {
		migrations, err := Migrations(dialect)
		if err != nil {
			t.Fatalf("%s: %v", dialect, err)
		}
		names, err := fs.Glob(migrations, "*.sql")
		if err != nil {
			t.Fatalf("glob %s: %v", dialect, err)
		}
		return names
	}

	pg := list(DialectPostgres)
	lite := list(DialectSQLite)
	if len(pg) != len(lite) {
		t.Fatalf("postgres has %d migration files, sqlite has %d", len(pg), len(lite))
	}
	for i := range pg {
		if pg[i] != lite[i] {
			t.Fatalf("migration %d differs: %s vs %s", i, pg[i], lite[i])
		}
	}
}
