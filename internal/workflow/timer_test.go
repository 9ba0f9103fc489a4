package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCountdown(t *testing.T) {
	tests := []struct {
		text    string
		want    int
		wantErr bool
	}{
		{text: "30:00", want: 1800},
		{text: "00:00", want: 0},
		{text: "29:58", want: 1798},
		{text: " 05:07\n", want: 307},
		{text: "120:00", want: 7200},
		{text: "5:7", want: 307},
		{text: "", wantErr: true},
		{text: "30", wantErr: true},
		{text: "1:02:03", wantErr: true},
		{text: "aa:00", wantErr: true},
		{text: "10:60", wantErr: true},
		{text: "-1:00", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseCountdown(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
