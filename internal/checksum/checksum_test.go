package checksum

import "testing"

func TestSumAndVerify(t *testing.T) {
	sum := Sum([]byte("hello"))
	if sum != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("sum = %s", sum)
	}
	if !Verify([]byte("hello"), sum) {
		t.Error("expected verify to pass")
	}
	if Verify([]byte("hello!"), sum) {
		t.Error("expected verify to fail for different data")
	}
}
