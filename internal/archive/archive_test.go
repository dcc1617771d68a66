package archive

import (
	"context"
	"errors"
	"testing"

	logx "github.com/Lyx52/opencast/pkg/logx"
)

func testArchives(t *testing.T) map[string]Archive {
	t.Helper()
	fs, err := Open(Config{Driver: "fs", Root: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open fs archive: %v", err)
	}
	t.Cleanup(func() { _ = fs.Close() })
	return map[string]Archive{
		"fs":     fs,
		"memory": NewMemory(),
	}
}

func testPackage(id, title string) MediaPackage {
	return MediaPackage{
		ID:      id,
		Title:   title,
		Series:  "series-1",
		Episode: Catalog{"title": title, "spatial": "room-1"},
		ACL: []ACLEntry{
			{Role: "ROLE_ADMIN", Action: "read", Allow: true},
		},
		Elements: []Element{
			{ID: "catalog-1", Flavor: "dublincore/episode", MimeType: "text/xml", Data: []byte("<dublincore/>")},
		},
	}
}

func TestArchiveVersioning(t *testing.T) {
	ctx := context.Background()
	for name, arch := range testArchives(t) {
		t.Run(name, func(t *testing.T) {
			first, err := arch.Take(ctx, "org", "scheduler", testPackage("e1", "Lecture"))
			if err != nil {
				t.Fatalf("Take: %v", err)
			}
			if first.Version != 1 {
				t.Fatalf("first version = %d, want 1", first.Version)
			}

			second, err := arch.Take(ctx, "org", "scheduler", testPackage("e1", "Lecture (edited)"))
			if err != nil {
				t.Fatalf("Take v2: %v", err)
			}
			if second.Version != 2 {
				t.Fatalf("second version = %d, want 2", second.Version)
			}

			latest, err := arch.Latest(ctx, "org", "e1")
			if err != nil {
				t.Fatalf("Latest: %v", err)
			}
			if latest.Version != 2 || latest.Package.Title != "Lecture (edited)" {
				t.Fatalf("latest = v%d %q", latest.Version, latest.Package.Title)
			}
			if latest.Owner != "scheduler" || latest.ArchivalDate.IsZero() {
				t.Fatalf("snapshot metadata = %+v", latest)
			}
		})
	}
}

func TestArchiveLatestMissing(t *testing.T) {
	ctx := context.Background()
	for name, arch := range testArchives(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := arch.Latest(ctx, "org", "nope"); !errors.Is(err, ErrNoSnapshot) {
				t.Fatalf("err = %v, want ErrNoSnapshot", err)
			}
		})
	}
}

func TestArchiveReadAsset(t *testing.T) {
	ctx := context.Background()
	for name, arch := range testArchives(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := arch.Take(ctx, "org", "scheduler", testPackage("e1", "Lecture")); err != nil {
				t.Fatalf("Take: %v", err)
			}

			data, err := arch.ReadAsset(ctx, "org", "e1", 1, "catalog-1")
			if err != nil {
				t.Fatalf("ReadAsset: %v", err)
			}
			if string(data) != "<dublincore/>" {
				t.Fatalf("asset = %q", data)
			}

			if _, err := arch.ReadAsset(ctx, "org", "e1", 1, "missing"); !errors.Is(err, ErrNoAsset) {
				t.Fatalf("missing element: err = %v, want ErrNoAsset", err)
			}
			if _, err := arch.ReadAsset(ctx, "org", "e1", 9, "catalog-1"); !errors.Is(err, ErrNoSnapshot) {
				t.Fatalf("missing version: err = %v, want ErrNoSnapshot", err)
			}
		})
	}
}

func TestArchiveDeleteAll(t *testing.T) {
	ctx := context.Background()
	for name, arch := range testArchives(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				if _, err := arch.Take(ctx, "org", "scheduler", testPackage("e1", "Lecture")); err != nil {
					t.Fatalf("Take: %v", err)
				}
			}

			n, err := arch.DeleteAll(ctx, "org", "e1")
			if err != nil || n != 3 {
				t.Fatalf("DeleteAll = %d, %v; want 3, nil", n, err)
			}
			n, err = arch.DeleteAll(ctx, "org", "e1")
			if err != nil || n != 0 {
				t.Fatalf("second DeleteAll = %d, %v; want 0, nil", n, err)
			}
			if _, err := arch.Latest(ctx, "org", "e1"); !errors.Is(err, ErrNoSnapshot) {
				t.Fatalf("Latest after delete: err = %v, want ErrNoSnapshot", err)
			}
		})
	}
}

func TestMediaPackageEqual(t *testing.T) {
	a := testPackage("e1", "Lecture")
	b := testPackage("e1", "Lecture")
	if !a.Equal(b) {
		t.Fatal("identical packages reported unequal")
	}

	b.Episode = Catalog{"spatial": "room-1", "title": "Lecture"} // same content, new map
	if !a.Equal(b) {
		t.Fatal("catalog map identity should not matter")
	}

	b.Title = "Other"
	if a.Equal(b) {
		t.Fatal("differing titles reported equal")
	}
}
