package broker

import (
	"testing"

	"github.com/nerrad567/indihub/internal/protocol"
)

func TestNoteRequestScope(t *testing.T) {
	tests := []struct {
		name      string
		requests  [][3]string // tag, device, name
		wantScope Scope
		wantProps int
	}{
		{
			name:      "generic getProperties widens to all",
			requests:  [][3]string{{"getProperties", "", ""}},
			wantScope: ScopeAll,
		},
		{
			name:      "wildcard device marks a chained server",
			requests:  [][3]string{{"getProperties", "*", ""}},
			wantScope: ScopeChained,
		},
		{
			name:      "chained server stays chained on generic request",
			requests:  [][3]string{{"getProperties", "*", ""}, {"getProperties", "", ""}},
			wantScope: ScopeChained,
		},
		{
			name:      "device request records an interest",
			requests:  [][3]string{{"getProperties", "Camera1", ""}},
			wantScope: ScopeListed,
			wantProps: 1,
		},
		{
			// Once narrowed, a later generic request does not widen scope.
			name:      "generic request after narrowing is ignored",
			requests:  [][3]string{{"getProperties", "Camera1", ""}, {"getProperties", "", ""}},
			wantScope: ScopeListed,
			wantProps: 1,
		},
		{
			name:      "wildcard after narrowing is an interest",
			requests:  [][3]string{{"getProperties", "Camera1", ""}, {"getProperties", "*", ""}},
			wantScope: ScopeListed,
			wantProps: 2,
		},
		{
			name:      "non getProperties without device changes nothing",
			requests:  [][3]string{{"newSwitchVector", "", ""}},
			wantScope: ScopeListed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{}
			for _, r := range tt.requests {
				c.noteRequest(r[0], r[1], r[2], false)
			}
			if c.scope != tt.wantScope {
				t.Errorf("scope = %v, want %v", c.scope, tt.wantScope)
			}
			if len(c.interests) != tt.wantProps {
				t.Errorf("interests = %v, want %d entries", c.interests, tt.wantProps)
			}
		})
	}
}

func TestRecordInterestSuppressesDuplicates(t *testing.T) {
	c := &Client{}
	c.recordInterest("Camera1", "exptime", false)
	c.recordInterest("Camera1", "exptime", false)
	c.recordInterest("Camera1", "", false)
	c.recordInterest("Camera1", "gain", false) // covered by the whole-device entry

	if len(c.interests) != 2 {
		t.Fatalf("interests = %+v, want 2 entries", c.interests)
	}

	// BLOB interests only deduplicate on the exact pair.
	c.recordInterest("Camera1", "CCD1", true)
	c.recordInterest("Camera1", "CCD1", true)
	if len(c.interests) != 3 {
		t.Errorf("interests = %+v, want 3 entries", c.interests)
	}
	for _, p := range c.interests {
		if p.BlobMode != protocol.BlobNever {
			t.Errorf("new interest %+v should start with BLOBs disabled", p)
		}
	}
}

func TestMatchesInterest(t *testing.T) {
	c := &Client{}
	c.recordInterest("Camera1", "", false)
	c.recordInterest("Mount", "EQUATORIAL_EOD_COORD", false)

	tests := []struct {
		device, name string
		want         bool
	}{
		{"Camera1", "exptime", true},
		{"Camera1", "", true},
		{"Mount", "EQUATORIAL_EOD_COORD", true},
		{"Mount", "TELESCOPE_PARK", false},
		{"Focuser", "ABS_POSITION", false},
		{"", "anything", true},
	}
	for _, tt := range tests {
		if got := c.matchesInterest(tt.device, tt.name); got != tt.want {
			t.Errorf("matchesInterest(%q, %q) = %v, want %v", tt.device, tt.name, got, tt.want)
		}
	}
}

func TestMatchesInterestIsMonotonicOnceAll(t *testing.T) {
	c := &Client{}
	c.noteRequest(protocol.TagGetProperties, "", "", false)

	// Whatever arrives later, an all-properties client keeps matching.
	c.noteRequest("newNumberVector", "Camera1", "exptime", false)
	c.setBlobMode("Camera1", "", "Also")

	for _, pair := range [][2]string{{"Camera1", "exptime"}, {"Mount", "x"}, {"Anything", ""}} {
		if !c.matchesInterest(pair[0], pair[1]) {
			t.Errorf("matchesInterest(%q, %q) = false after all-properties request", pair[0], pair[1])
		}
	}
}

func TestSetBlobModeNamedPropertyOnly(t *testing.T) {
	c := &Client{}
	c.recordInterest("Camera1", "", false)
	c.setBlobMode("Camera1", "CCD1", "Only")

	if c.blobMode != protocol.BlobNever {
		t.Errorf("global mode = %v, want Never", c.blobMode)
	}
	if got := c.blobModeFor("Camera1", "CCD1"); got != protocol.BlobOnly {
		t.Errorf("CCD1 mode = %v, want Only", got)
	}
	if got := c.interests[0].BlobMode; got != protocol.BlobNever {
		t.Errorf("whole-device interest mode = %v, want Never", got)
	}
}

func TestSetBlobModeGlobalPropagates(t *testing.T) {
	c := &Client{}
	c.recordInterest("Camera1", "", false)
	c.setBlobMode("Camera1", "CCD1", "Only")
	c.setBlobMode("Camera1", "", "Also")

	if c.blobMode != protocol.BlobAlso {
		t.Errorf("global mode = %v, want Also", c.blobMode)
	}
	for _, p := range c.interests {
		if p.BlobMode != protocol.BlobAlso {
			t.Errorf("interest %+v not updated to Also", p)
		}
	}
}

func TestSetBlobModeUnrecognisedValue(t *testing.T) {
	c := &Client{}
	c.setBlobMode("Camera1", "", "Also")
	c.setBlobMode("Camera1", "", "Sometimes")
	if c.blobMode != protocol.BlobAlso {
		t.Errorf("global mode = %v, want unchanged Also", c.blobMode)
	}

	c.setBlobMode("Camera1", "CCD2", "bogus")
	if len(c.interests) != 1 {
		t.Fatalf("named property should still be tracked, interests = %+v", c.interests)
	}
	if got := c.blobModeFor("Camera1", "CCD2"); got != protocol.BlobNever {
		t.Errorf("CCD2 mode = %v, want Never", got)
	}
}

func TestMatchesDevice(t *testing.T) {
	c := &Client{}
	c.recordInterest("Camera1", "exptime", false)
	c.recordInterest("Mount", "", false)

	tests := []struct {
		device string
		want   bool
	}{
		{"Camera1", true},
		{"Mount", true},
		{"Guider", false},
		{"", true},
	}
	for _, tt := range tests {
		if got := c.matchesDevice(tt.device); got != tt.want {
			t.Errorf("matchesDevice(%q) = %v, want %v", tt.device, got, tt.want)
		}
	}

	// Ordinary unnamed elements keep property-level matching.
	if c.matchesInterest("Camera1", "") {
		t.Error("matchesInterest(Camera1, \"\") = true for a property-scoped client")
	}

	all := &Client{scope: ScopeAll}
	if !all.matchesDevice("Guider") {
		t.Error("ScopeAll client does not match every device")
	}
}
