// ABOUTME: Tests for control API messages
// ABOUTME: Checks the JSON field names clients depend on
package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageJSON(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []string
	}{
		{
			"progress",
			Message{Type: TypeTranscodeProgress, Payload: TranscodeProgress{JobID: "j1", Progress: 42.5}},
			[]string{`"type":"transcode/progress"`, `"job_id":"j1"`, `"progress":42.5`},
		},
		{
			"done omits empty codec fields",
			Message{Type: TypeTranscodeDone, Payload: TranscodeDone{JobID: "j2", Record: Record{ID: "r", BodyBytes: 10}}},
			[]string{`"body_bytes":10`, `"record":{`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(string(data), w) {
					t.Errorf("%s missing %s", data, w)
				}
			}
			if strings.Contains(string(data), "compressed_path") {
				t.Errorf("%s should omit empty compressed_path", data)
			}
		})
	}
}

func TestTranscodeRequestDecode(t *testing.T) {
	var req TranscodeRequest
	body := `{"source":"a.wav","codec":"vorbis","quality":0.6,"trim":{"start":0.1,"end":0.2}}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatal(err)
	}
	if req.Source != "a.wav" || req.Codec != "vorbis" || req.Quality != 0.6 || req.Trim == nil || req.Trim.End != 0.2 {
		t.Errorf("decoded %+v", req)
	}
}
