package importer

import "testing"

func TestSanitizerStripsScriptFromRichText(t *testing.T) {
	s := NewSanitizer()
	body := map[string]interface{}{
		"content": `<p>hello <script>alert(1)</script>world</p>`,
	}
	s.Clean(body)
	got := body["content"].(string)
	if got != "<p>hello world</p>" {
		t.Fatalf("expected script stripped and paragraph kept, got %q", got)
	}
}

func TestSanitizerStripsAllTagsFromPlainText(t *testing.T) {
	s := NewSanitizer()
	body := map[string]interface{}{
		"name":    `<b>Alice</b>`,
		"summary": `<img src=x onerror=alert(1)>bio`,
	}
	s.Clean(body)
	if body["name"].(string) != "Alice" {
		t.Fatalf("expected tags stripped from name, got %q", body["name"])
	}
	if body["summary"].(string) != "bio" {
		t.Fatalf("expected tags stripped from summary, got %q", body["summary"])
	}
}

func TestNilSanitizerLeavesBodyUntouched(t *testing.T) {
	var s *Sanitizer
	body := map[string]interface{}{"content": "<script>alert(1)</script>"}
	s.Clean(body)
	if body["content"].(string) != "<script>alert(1)</script>" {
		t.Fatalf("expected nil sanitizer to be a no-op, got %q", body["content"])
	}
}

func TestImportObjectSanitizesContentBeforeUpsert(t *testing.T) {
	store := newFakeStore()
	fetch := &fakeFetch{objects: map[string]map[string]interface{}{
		"https://remote.example/objects/1": {
			"id":      "https://remote.example/objects/1",
			"content": `<p>hi</p><script>evil()</script>`,
		},
	}}
	o := Objects{Store: store, Fetch: fetch, Sanitize: NewSanitizer()}
	got, err := o.ImportObject("https://remote.example/objects/1", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got["content"].(string) != "<p>hi</p>" {
		t.Fatalf("expected script stripped from stored content, got %q", got["content"])
	}
}
