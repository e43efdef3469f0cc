package getop

import "testing"

func TestMatchesAgreesOnSameContent(t *testing.T) {
	nonce, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	content := []byte("chunk bytes")
	scalar := ExpectedScalar(nonce, content)
	if !Matches(nonce, content, scalar) {
		t.Fatal("expected scalar to match itself")
	}
}

func TestMatchesRejectsTamperedContent(t *testing.T) {
	nonce, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	scalar := ExpectedScalar(nonce, []byte("original"))
	if Matches(nonce, []byte("tampered"), scalar) {
		t.Fatal("expected mismatch on tampered content")
	}
}

func TestNewNonceIsFreshEachCall(t *testing.T) {
	a, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	if string(a) == string(b) {
		t.Fatal("expected distinct nonces")
	}
}
