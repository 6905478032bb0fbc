package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeContentTj(t *testing.T) {
	stream := []byte(`BT /F1 12 Tf 72 712 Td (Hello World) Tj ET`)
	assert.Equal(t, "Hello World", DecodeContent(stream))
}

func TestDecodeContentTJWithKerning(t *testing.T) {
	stream := []byte(`BT /F1 12 Tf [(Vector)-40(s) -500 (index)] TJ ET`)
	assert.Equal(t, "Vectors index", DecodeContent(stream))
}

func TestDecodeContentLineBreaks(t *testing.T) {
	stream := []byte(`BT
/F1 12 Tf
72 712 Td
(First line) Tj
0 -14 Td
(Second line) Tj
T*
(Third) Tj
(Fourth) '
ET
BT (Next block) Tj ET`)
	assert.Equal(t, "First line\nSecond line\nThird\nFourth\nNext block", DecodeContent(stream))
}

func TestDecodeContentEscapesAndHex(t *testing.T) {
	stream := []byte(`BT (a \(nested\) \101 \\ b) Tj T* <48656C6C6F> Tj T* <FEFF00E9007400E9> Tj ET`)
	assert.Equal(t, "a (nested) A \\ b\nHello\nété", DecodeContent(stream))
}

func TestDecodeContentSkipsNonText(t *testing.T) {
	stream := []byte(`q 1 0 0 1 0 0 cm /Im1 Do Q
BI /W 2 /H 2 /BPC 8 ID ` + "\x00\xff(Tj)\x10" + ` EI
% a comment (not text) Tj
BT /Span <</MCID 0>> BDC (Visible) Tj EMC ET`)
	assert.Equal(t, "Visible", DecodeContent(stream))
}

func TestDecodeContentLatin1(t *testing.T) {
	stream := []byte("BT (caf\xe9) Tj ET")
	assert.Equal(t, "café", DecodeContent(stream))
}
