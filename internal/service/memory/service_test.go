package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	"github.com/zhouzirui/chobits/backend/internal/model/resource"
	"github.com/zhouzirui/chobits/backend/internal/storage"
)

func newTestService(t *testing.T, nodes ...resource.Node) *Service {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 5, 0, 0, time.Local) }
	for _, n := range nodes {
		if err := svc.Library().Put(context.Background(), n); err != nil {
			t.Fatalf("put %s: %v", n.ID, err)
		}
	}
	return svc
}

func tree() []resource.Node {
	return []resource.Node{
		{ID: "mem", Title: "📂 小叽_资料库", IsFolder: true, Type: resource.TypeFolder},
		{ID: "core", ParentID: "mem", Title: CoreMemoryTitle, Content: "喜欢草莓", Type: resource.TypeKnowledge},
		{ID: "docs", Title: "docs", IsFolder: true, Type: resource.TypeFolder},
		{ID: "sub", ParentID: "docs", Title: "sub", IsFolder: true, Type: resource.TypeFolder},
		{ID: "d1", ParentID: "docs", Title: "菜谱", Content: "番茄炒蛋", Type: resource.TypeKnowledge},
		{ID: "d2", ParentID: "sub", Title: "日记", Content: "", Type: resource.TypeKnowledge},
		{ID: "loose", Title: "便签", Content: "买牛奶", Type: resource.TypeKnowledge},
	}
}

func TestFolderFilesIsRecursiveAndSkipsFolders(t *testing.T) {
	svc := newTestService(t, tree()...)

	files, err := svc.Library().FolderFiles(context.Background(), "docs")
	if err != nil {
		t.Fatalf("FolderFiles: %v", err)
	}
	var ids []string
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	if diff := cmp.Diff([]string{"d1", "d2"}, ids); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestFolderFilesSurvivesCycles(t *testing.T) {
	svc := newTestService(t,
		resource.Node{ID: "a", ParentID: "b", IsFolder: true},
		resource.Node{ID: "b", ParentID: "a", IsFolder: true},
		resource.Node{ID: "f", ParentID: "b", Title: "x"},
	)
	files, err := svc.Library().FolderFiles(context.Background(), "a")
	if err != nil || len(files) != 1 {
		t.Fatalf("FolderFiles = %v, %v", files, err)
	}
}

func TestCoreMemory(t *testing.T) {
	svc := newTestService(t, tree()...)
	ctx := context.Background()

	got, err := svc.CoreMemory(ctx, persona.Persona{MemoryFolderID: "mem"})
	if err != nil || got != "喜欢草莓" {
		t.Fatalf("CoreMemory = %q, %v", got, err)
	}

	got, err = svc.CoreMemory(ctx, persona.Persona{})
	if err != nil || got != "" {
		t.Fatalf("no memory folder should yield empty memory, got %q, %v", got, err)
	}
}

func TestResourceContext(t *testing.T) {
	svc := newTestService(t, tree()...)
	a := persona.Persona{
		LinkedFolderIDs:   []string{"docs"},
		LinkedResourceIDs: []string{"d1", "docs"},
	}

	got, names, err := svc.ResourceContext(context.Background(), a, "看看 @便签 和 @菜谱")
	if err != nil {
		t.Fatalf("ResourceContext: %v", err)
	}

	want := "\n<document title=\"菜谱\">\n番茄炒蛋\n</document>\n" +
		"\n<document title=\"日记\">\n(空)\n</document>\n" +
		"\n<document title=\"便签\">\n买牛奶\n</document>\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"菜谱", "日记", "便签"}, names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestResourceContextTruncatesLongDocuments(t *testing.T) {
	long := strings.Repeat("字", maxDocumentRunes+10)
	svc := newTestService(t, resource.Node{ID: "big", Title: "big", Content: long})

	got, _, err := svc.ResourceContext(context.Background(), persona.Persona{LinkedResourceIDs: []string{"big"}}, "")
	if err != nil {
		t.Fatalf("ResourceContext: %v", err)
	}
	if n := strings.Count(got, "字"); n != maxDocumentRunes {
		t.Fatalf("expected %d runes, got %d", maxDocumentRunes, n)
	}
}

func TestAppendExtendsCoreMemory(t *testing.T) {
	svc := newTestService(t, tree()...)
	ctx := context.Background()
	a := persona.Persona{ID: "chii", MemoryFolderID: "mem"}

	if err := svc.Append(ctx, a, "早", "早安"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, _ := svc.CoreMemory(ctx, a)
	want := "喜欢草莓\n[2025-03-01 09:05] 主人: 早 | 小叽: 早安"
	if got != want {
		t.Fatalf("core memory = %q, want %q", got, want)
	}

	journal, err := svc.Journal(ctx, "chii")
	if err != nil || len(journal) != 1 || journal[0].Reply != "早安" {
		t.Fatalf("Journal = %+v, %v", journal, err)
	}
}

func TestAppendCreatesMissingFile(t *testing.T) {
	svc := newTestService(t, resource.Node{ID: "mem", IsFolder: true})
	ctx := context.Background()
	a := persona.Persona{ID: "chii", MemoryFolderID: "mem"}

	if err := svc.Append(ctx, a, "hi", "ちぃ"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, _ := svc.CoreMemory(ctx, a)
	if got != "\n[2025-03-01 09:05] 主人: hi | 小叽: ちぃ" {
		t.Fatalf("unexpected core memory %q", got)
	}
}

func TestAppendWithoutMemoryFolderIsNoop(t *testing.T) {
	svc := newTestService(t)
	if err := svc.Append(context.Background(), persona.Persona{ID: "x"}, "a", "b"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	nodes, _ := svc.Library().List(context.Background())
	if len(nodes) != 0 {
		t.Fatalf("no nodes expected, got %d", len(nodes))
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	folderID, err := svc.Provision(ctx, persona.Persona{Name: "小叽", MemoryFolderID: "chii-memory"})
	if err != nil || folderID != "chii-memory" {
		t.Fatalf("Provision = %q, %v", folderID, err)
	}
	if _, err := svc.Provision(ctx, persona.Persona{Name: "小叽", MemoryFolderID: folderID}); err != nil {
		t.Fatalf("second Provision: %v", err)
	}

	nodes, _ := svc.Library().List(ctx)
	if len(nodes) != 2 {
		t.Fatalf("expected folder + core file, got %d nodes", len(nodes))
	}

	core, _ := svc.CoreMemory(ctx, persona.Persona{MemoryFolderID: folderID})
	if !strings.HasPrefix(core, "=== 小叽 的核心记忆 ===\n创建时间: 2025/3/1 09:05:00") {
		t.Fatalf("unexpected core memory header %q", core)
	}
}
