package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinels_AreDistinct(t *testing.T) {
	all := []error{
		ErrValidation, ErrDecryption, ErrSessionNotFound, ErrAssembly,
		ErrHashMismatch, ErrOwnerUnavailable, ErrCanceled, ErrInvalidToken,
	}
	for i := range all {
		for j := range all {
			if i != j && errors.Is(all[i], all[j]) {
				t.Fatalf("%v must not match %v", all[i], all[j])
			}
		}
	}
}

func TestSentinels_SurviveWrapping(t *testing.T) {
	err := fmt.Errorf("chunk 3: %w", ErrValidation)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("wrapped error lost its sentinel: %v", err)
	}
}
