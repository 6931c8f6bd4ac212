package cameras

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupStore(t *testing.T, content string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cameras.toml")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, path
}

const twoCameras = `
version = 1

[[cameras]]
name = "Porch"
uri = "rtsp://10.0.0.2/h265"

[[cameras]]
uri = "rtsp://10.0.0.3/h264"
codec = "h264"
enabled = false
`

func TestNewStoreDefaultPath(t *testing.T) {
	if got := NewStore("").Path(); got != "cameras.toml" {
		t.Errorf("default path = %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, _ := setupStore(t, "")
	if got := s.List(); len(got) != 0 {
		t.Errorf("List = %v, want empty", got)
	}
	cams, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil || len(cams) != 0 {
		t.Errorf("Load(absent) = %v, %v", cams, err)
	}
}

func TestStoreListNormalizes(t *testing.T) {
	s, _ := setupStore(t, twoCameras)

	cams := s.List()
	if len(cams) != 2 {
		t.Fatalf("got %d cameras, want 2", len(cams))
	}
	if cams[0].Name != "Porch" || cams[0].Codec != CodecH265 {
		t.Errorf("camera 0 = %+v", cams[0])
	}
	if cams[1].Name != "Camera_2" || cams[1].Codec != CodecH264 || cams[1].IsEnabled() {
		t.Errorf("camera 1 = %+v", cams[1])
	}
}

func TestStoreGet(t *testing.T) {
	s, _ := setupStore(t, twoCameras)

	if _, err := s.Get(5); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(5) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(-1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(-1) error = %v, want ErrNotFound", err)
	}
	cam, err := s.Get(0)
	if err != nil || cam.Name != "Porch" {
		t.Errorf("Get(0) = %+v, %v", cam, err)
	}
}

func TestStoreSetURIPersists(t *testing.T) {
	s, path := setupStore(t, twoCameras)

	if err := s.SetURI(0, "rtsp://10.0.0.9/main"); err != nil {
		t.Fatalf("SetURI: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded[0].URI != "rtsp://10.0.0.9/main" {
		t.Errorf("persisted URI = %q", reloaded[0].URI)
	}
	if reloaded[1].IsEnabled() {
		t.Error("unrelated camera changed")
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "live_width") {
		t.Errorf("defaults were written back to the file:\n%s", data)
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	s, path := setupStore(t, twoCameras)
	before, _ := os.ReadFile(path)

	if err := s.SetURI(0, "http://nope"); err == nil {
		t.Fatal("expected validation error")
	}
	if cam, _ := s.Get(0); cam.URI != "rtsp://10.0.0.2/h265" {
		t.Errorf("in-memory URI changed to %q", cam.URI)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file changed after rejected update")
	}
	if err := s.SetURI(9, "rtsp://x/y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetURI(9) = %v, want ErrNotFound", err)
	}
}

func TestStoreAddAndEnable(t *testing.T) {
	s, path := setupStore(t, "")

	idx, err := s.Add(Settings{Name: "Shed", URI: "rtsp://shed/live"})
	if err != nil || idx != 0 {
		t.Fatalf("Add = %d, %v", idx, err)
	}
	if err := s.SetEnabled(0, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	cams, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cams) != 1 || cams[0].Name != "Shed" || cams[0].IsEnabled() {
		t.Errorf("persisted = %+v", cams)
	}

	if _, err := s.Add(Settings{URI: "ftp://bad"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("Add(invalid) = %v, want ErrInvalid", err)
	}
	if len(s.List()) != 1 {
		t.Error("rejected camera was kept in memory")
	}
}

func TestLoadReportsInvalidCamera(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.toml")
	content := "[[cameras]]\nname = \"Bad\"\nuri = \"rtsp://cam/1\"\ncodec = \"mpeg2\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "camera 0 (Bad)") {
		t.Errorf("Load error = %v", err)
	}
}

func TestLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.toml")
	if err := os.WriteFile(path, []byte("[[cameras]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
