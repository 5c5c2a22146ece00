package hardware

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = `{"command": "update", "id": "encoder", "value": "1", "checksum": "ABCD"}
{"command": "update", "id": "encoder", "value": "-1", "checksum": "ABCD"}
not a frame at all
{"command": "update", "id": "encoder_button", "value": "1", "checksum": "ABCD"}

{"command": "update", "id": "scale", "value": "42", "checksum": "ABCD"}` + "\r\n" +
	`{"command": "finished", "id": "gin", "value": "ok"}
{"command": "update", "id": "emergency_stop", "value": "1", "checksum": "ABCD"}
{"command": "upd`

func frameIDs(frames []*CommandFrame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Verb + "/" + f.ID + "/" + f.Value
	}
	return out
}

func feedChunks(r *FrameReader, data []byte, sizes func() int) ([]*CommandFrame, []error) {
	var (
		frames []*CommandFrame
		errs   []error
	)
	for len(data) > 0 {
		n := sizes()
		if n > len(data) {
			n = len(data)
		}
		f, e := r.Feed(data[:n])
		frames = append(frames, f...)
		errs = append(errs, e...)
		data = data[n:]
	}
	return frames, errs
}

func TestFrameReaderSingleDelivery(t *testing.T) {
	r := NewFrameReader(0)
	frames, errs := r.Feed([]byte(sampleStream))

	assert.Equal(t, []string{
		"update/encoder/1",
		"update/encoder/-1",
		"update/encoder_button/1",
		"update/scale/42",
		"finished/gin/ok",
		"update/emergency_stop/1",
	}, frameIDs(frames))
	require.Len(t, errs, 1)
	assert.True(t, apperrors.Is(errs[0], apperrors.ErrFrameDecode))

	var fe *FrameError
	require.ErrorAs(t, errs[0], &fe)
	assert.Equal(t, "not a frame at all", string(fe.Line))

	// 末尾半行保留
	assert.Equal(t, len(`{"command": "upd`), r.Buffered())
	frames, errs = r.Feed([]byte(`ate", "id": "encoder", "value": "3"}` + "\n"))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"update/encoder/3"}, frameIDs(frames))
	assert.Zero(t, r.Buffered())
}

func TestFrameReaderChunkBoundaryIndependence(t *testing.T) {
	data := []byte(sampleStream)

	whole := NewFrameReader(0)
	want, wantErrs := whole.Feed(data)

	rng := rand.New(rand.NewSource(20240601))
	splitters := map[string]func() int{
		"byte by byte": func() int { return 1 },
		"fixed 7":      func() int { return 7 },
		"random":       func() int { return 1 + rng.Intn(40) },
	}

	for name, sizes := range splitters {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				r := NewFrameReader(0)
				got, gotErrs := feedChunks(r, data, sizes)
				assert.Equal(t, frameIDs(want), frameIDs(got))
				assert.Equal(t, len(wantErrs), len(gotErrs))
				assert.Equal(t, whole.Buffered(), r.Buffered())
			}
		})
	}
}

func TestFrameReaderOverflow(t *testing.T) {
	r := NewFrameReader(64)

	// 超长未分隔数据被丢弃
	_, errs := r.Feed(bytes.Repeat([]byte("x"), 100))
	require.Len(t, errs, 1)
	assert.True(t, apperrors.Is(errs[0], apperrors.ErrFrameOverflow))
	assert.Zero(t, r.Buffered())

	// 超长行剩余部分直到换行都被丢弃，之后恢复解码
	frames, errs := r.Feed([]byte(`{"command":"update","id":"encoder","value":"9"}` + "\n" +
		`{"command":"update","id":"encoder","value":"2"}` + "\n"))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"update/encoder/2"}, frameIDs(frames))
}

func TestFrameReaderOversizedLineIsChunkIndependent(t *testing.T) {
	long := `{"command":"update","id":"encoder","value":"` + strings.Repeat("1", 80) + `"}`
	data := []byte("{\"command\":\"update\",\"id\":\"scale\",\"value\":\"5\"}\n" + long + "\n" +
		"{\"command\":\"update\",\"id\":\"encoder_button\"}\n")

	whole := NewFrameReader(64)
	want, wantErrs := whole.Feed(data)
	assert.Equal(t, []string{"update/scale/5", "update/encoder_button/"}, frameIDs(want))
	require.Len(t, wantErrs, 1)
	assert.True(t, apperrors.Is(wantErrs[0], apperrors.ErrFrameOverflow))

	for _, size := range []int{1, 3, 10, 63, 64, 65} {
		r := NewFrameReader(64)
		got, gotErrs := feedChunks(r, data, func() int { return size })
		assert.Equal(t, frameIDs(want), frameIDs(got), "chunk %d", size)
		assert.Len(t, gotErrs, 1, "chunk %d", size)
	}
}

func TestFrameReaderBlankAndCRLF(t *testing.T) {
	r := NewFrameReader(0)
	frames, errs := r.Feed([]byte("\n\r\n   \n{\"command\":\"update\",\"id\":\"scale\",\"value\":\"7\"}\r\n"))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"update/scale/7"}, frameIDs(frames))
}

func TestFrameReaderReset(t *testing.T) {
	r := NewFrameReader(0)
	r.Feed([]byte(`{"command":"upd`))
	assert.NotZero(t, r.Buffered())
	r.Reset()
	assert.Zero(t, r.Buffered())

	frames, errs := r.Feed([]byte(`{"command":"update","id":"encoder","value":"1"}` + "\n"))
	assert.Empty(t, errs)
	assert.Len(t, frames, 1)
}
