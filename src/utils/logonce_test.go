package utils

import "testing"

func TestLogOnce(t *testing.T) {
	ResetLogOnce()

	if !LogOnce("ticker timeout") {
		t.Fatal("first sighting should report true")
	}
	if LogOnce("ticker timeout") {
		t.Fatal("repeat sighting should report false")
	}
	if !LogOnce("kline timeout") {
		t.Fatal("a different key should report true")
	}

	ResetLogOnce()
	if !LogOnce("ticker timeout") {
		t.Fatal("reset should forget earlier keys")
	}
}
