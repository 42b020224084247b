package jpeg

import "testing"

func TestCheckSamplingLattice(t *testing.T) {
    ok := []Component{{ID: 1, H: 2, V: 2}, {ID: 2, H: 1, V: 1}, {ID: 3, H: 1, V: 1}}
    if err := checkSamplingLattice(ok); err != nil {
        t.Errorf("valid lattice rejected: %v", err)
    }

    bad := []Component{{ID: 1, H: 3, V: 1}, {ID: 2, H: 2, V: 1}}
    if err := checkSamplingLattice(bad); err == nil {
        t.Errorf("expected an error for a non-dividing sampling lattice")
    }
}

func TestProcessClassification(t *testing.T) {
    if !ProgressiveArithmetic.isProgressive() || !ProgressiveArithmetic.isArithmetic() {
        t.Errorf("ProgressiveArithmetic should be both progressive and arithmetic")
    }
    if !LosslessHuffman.isLossless() || LosslessHuffman.isArithmetic() {
        t.Errorf("LosslessHuffman should be lossless and not arithmetic")
    }
	if !DifferentialProgressiveArithmetic.isDifferential() {
		t.Errorf("DifferentialProgressiveArithmetic should be differential")
	}
    if !JPEGLS.isLossless() {
        t.Errorf("JPEGLS should be classified as lossless")
    }
}

func TestCeilDiv(t *testing.T) {
    cases := []struct{ a, b, want int }{{16, 8, 2}, {17, 8, 3}, {0, 8, 0}, {8, 8, 1}}
    for _, c := range cases {
        if got := ceilDiv(c.a, c.b); got != c.want {
            t.Errorf("ceilDiv(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
        }
    }
}
