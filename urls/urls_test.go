package urls

import "testing"

func TestHttpURLRoundTrip(t *testing.T) {
	cases := []string{
		"https://example.com/users/alice",
		"http://example.com:8080/a/b?x=1#frag",
		"https://[2001:db8::1]:9000/path",
	}
	for _, s := range cases {
		u, err := ParseHttpURL(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		u2, err := ParseHttpURL(u.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", u.String(), err)
		}
		if u2.String() != u.String() {
			t.Errorf("round-trip mismatch: %q != %q", u2.String(), u.String())
		}
	}
}

func TestHttpURLPortOutOfRange(t *testing.T) {
	if _, err := ParseHttpURL("https://example.com:70000/"); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestHttpURLRejectsBadScheme(t *testing.T) {
	if _, err := ParseHttpURL("ftp://example.com/"); err != ErrInvalidScheme {
		t.Fatalf("expected ErrInvalidScheme, got %v", err)
	}
}

func TestApURLParse(t *testing.T) {
	s := "ap://did:key:z6MkvUie7gDQugJmyDQQPhMCCBfKJo7aGvzQYF2BqvFvdwx6/actor"
	a, err := ParseApURL(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Authority.Kind != DidKey {
		t.Fatalf("expected DidKey")
	}
	if a.String() != s {
		t.Errorf("round trip: got %q want %q", a.String(), s)
	}
}

func TestApURLRejectsRootAndDoubleSlash(t *testing.T) {
	base := "ap://did:key:z6MkvUie7gDQugJmyDQQPhMCCBfKJo7aGvzQYF2BqvFvdwx6"
	if _, err := ParseApURL(base + "/"); err == nil {
		t.Fatal("expected error for root path")
	}
	if _, err := ParseApURL(base + "//x"); err == nil {
		t.Fatal("expected error for double slash")
	}
}

func TestGatewayRoundTrip(t *testing.T) {
	canonical := "ap://did:key:z6MkvUie7gDQugJmyDQQPhMCCBfKJo7aGvzQYF2BqvFvdwx6/actor"
	gateways := []string{"https://social.example", "https://other.example:8443"}
	for _, g := range gateways {
		ap, err := ParseApURL(canonical)
		if err != nil {
			t.Fatal(err)
		}
		gf := GatewayForm(ap, g)
		c, err := CanonicalizeID(gf)
		if err != nil {
			t.Fatalf("canonicalize %q: %v", gf, err)
		}
		if c.String() != canonical {
			t.Errorf("gateway round trip: got %q want %q", c.String(), canonical)
		}
		if c.Gateway == nil || c.Gateway.Origin != g {
			t.Errorf("expected gateway origin %q, got %+v", g, c.Gateway)
		}
	}
}

func TestCanonicalizeGatewayS1(t *testing.T) {
	in := "https://social.example/.well-known/apgateway/did:key:z6MkvUie7gDQugJmyDQQPhMCCBfKJo7aGvzQYF2BqvFvdwx6/actor"
	c, err := CanonicalizeID(in)
	if err != nil {
		t.Fatal(err)
	}
	want := "ap://did:key:z6MkvUie7gDQugJmyDQQPhMCCBfKJo7aGvzQYF2BqvFvdwx6/actor"
	if c.String() != want {
		t.Errorf("got %q want %q", c.String(), want)
	}
	if c.Gateway == nil || c.Gateway.Origin != "https://social.example" {
		t.Errorf("unexpected gateway: %+v", c.Gateway)
	}
}

func TestSameOrigin(t *testing.T) {
	a, _ := ParseHttpURL("https://example.com/a")
	b, _ := ParseHttpURL("https://example.com:443/b")
	c, _ := ParseHttpURL("https://other.example/a")
	if !SameOrigin(FromHttp(a), FromHttp(b)) {
		t.Error("expected same origin with default port")
	}
	if SameOrigin(FromHttp(a), FromHttp(c)) {
		t.Error("expected different origin")
	}
	ap1, _ := ParseApURL("ap://did:key:zabc/x")
	ap2, _ := ParseApURL("ap://did:key:zabc/y")
	ap3, _ := ParseApURL("ap://did:key:zdef/x")
	if !SameAuthority(FromAp(ap1), FromAp(ap2)) {
		t.Error("expected same authority")
	}
	if SameAuthority(FromAp(ap1), FromAp(ap3)) {
		t.Error("expected different authority")
	}
	if SameOrigin(FromHttp(a), FromAp(ap1)) {
		t.Error("cross-kind must never be same-origin")
	}
}

func TestWebfingerAddress(t *testing.T) {
	w, err := ParseWebfingerAddress("@user@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if w.Username != "user" || w.Hostname != "example.com" {
		t.Fatalf("got %+v", w)
	}
	if w.Handle() != "@user@example.com" {
		t.Errorf("handle: %s", w.Handle())
	}
	if w.Endpoint() != "https://example.com/.well-known/webfinger" {
		t.Errorf("endpoint: %s", w.Endpoint())
	}
}

func TestDidPkh(t *testing.T) {
	d, err := ParseDid("did:pkh:eip155:1:0xabCDEF0123456789")
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != DidPkh || d.Chain != "eip155:1" || d.Address != "0xabCDEF0123456789" {
		t.Fatalf("got %+v", d)
	}
	if d.String() != "did:pkh:eip155:1:0xabCDEF0123456789" {
		t.Errorf("string: %s", d.String())
	}
}
