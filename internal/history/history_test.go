package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/qlcremote/internal/db"
)

func logs(t *testing.T) map[string]Log {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return map[string]Log{
		"memory": NewMemory(0),
		"sqlite": NewSQLite(database.DB),
	}
}

func TestRecentIsNewestFirst(t *testing.T) {
	for name, l := range logs(t) {
		t.Run(name, func(t *testing.T) {
			commands := []string{"1 AT 255", "abc AT xyz", "UNI 1 CLR"}
			for i, c := range commands {
				if err := l.Append(NewEntry("s1", c, i != 1)); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}

			got, err := l.Recent(10)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("Recent returned %d entries, want 3", len(got))
			}
			for i, want := range []string{"UNI 1 CLR", "abc AT xyz", "1 AT 255"} {
				if got[i].Command != want {
					t.Errorf("entry %d = %q, want %q", i, got[i].Command, want)
				}
			}
			if got[1].Succeeded {
				t.Error("invalid command recorded as succeeded")
			}
			if got[0].SessionID != "s1" {
				t.Errorf("SessionID = %q, want s1", got[0].SessionID)
			}

			limited, _ := l.Recent(1)
			if len(limited) != 1 || limited[0].Command != "UNI 1 CLR" {
				t.Errorf("Recent(1) = %+v", limited)
			}
		})
	}
}

func TestMemoryCapacity(t *testing.T) {
	l := NewMemory(2)
	for _, c := range []string{"a", "b", "c"} {
		l.Append(NewEntry("", c, true))
	}
	got, _ := l.Recent(0)
	if len(got) != 2 || got[0].Command != "c" || got[1].Command != "b" {
		t.Errorf("Recent = %+v, want [c b]", got)
	}
}

func TestSQLiteKeepsIDs(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer database.Close()

	l := NewSQLite(database.DB)
	e := NewEntry("", "5 CLR", true)
	l.Append(e)

	got, err := l.Recent(1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Recent = %v, %v", got, err)
	}
	if got[0].ID != e.ID {
		t.Errorf("ID = %v, want %v", got[0].ID, e.ID)
	}
	if !got[0].Timestamp.Equal(e.Timestamp.Truncate(time.Millisecond)) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, e.Timestamp)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer database.Close()
	l := NewSQLite(database.DB)

	old := NewEntry("s1", "1 AT 255", true)
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	fresh := NewEntry("s1", "2 AT 0", true)
	for _, e := range []Entry{old, fresh} {
		if err := l.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := l.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d entries, want 1", n)
	}
	got, err := l.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Command != "2 AT 0" {
		t.Errorf("Recent() = %v, want only the fresh entry", got)
	}
}
