package utils

import (
	"fmt"
	"testing"
)

func TestTagDecompose(t *testing.T) {

	expectedOrg := "container-tools"
	expectedImg := "image-name"
	expectedVer := "1.0.2"

	ok, org, image, version := TagDecompose(fmt.Sprintf("%s/%s:%s", expectedOrg, expectedImg, expectedVer))
	if !ok {
		t.Fatal("expected tag to decompose")
	}
	if org != expectedOrg {
		t.Fatalf("expected different than parsed: %q vs %q", expectedOrg, org)
	}
	if image != expectedImg {
		t.Fatalf("expected different than parsed: %q vs %q", expectedImg, image)
	}
	if version != expectedVer {
		t.Fatalf("expected different than parsed: %q vs %q", expectedVer, version)
	}
}

func TestTagDecomposeWithoutOrg(t *testing.T) {

	ok, org, image, version := TagDecompose("busybox:latest")
	if !ok {
		t.Fatal("expected tag to decompose")
	}
	if org != "" {
		t.Fatalf("expected empty org, got %q", org)
	}
	if image != "busybox" {
		t.Fatalf("expected different than parsed: %q vs %q", "busybox", image)
	}
	if version != "latest" {
		t.Fatalf("expected different than parsed: %q vs %q", "latest", version)
	}

	if IsValidTag("not a tag") {
		t.Error("expected an invalid tag to not validate")
	}
}
