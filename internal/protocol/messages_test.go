package protocol

import (
	"errors"
	"testing"
)

func TestDecodeTranscript(t *testing.T) {
	payload := []byte(`{"type":"transcript","is_final":true,"speaker":"SPEAKER_00","text":"Se da por instalada la audiencia.","confidence":0.93,"start":0,"end":3,"words":[{"word":"Se","start":0,"end":0.2,"confidence":0.99}]}`)
	evt, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	transcript, ok := evt.(TranscriptEvent)
	if !ok {
		t.Fatalf("expected TranscriptEvent, got %T", evt)
	}
	if !transcript.IsFinal {
		t.Fatal("expected final transcript")
	}
	if transcript.Speaker != "SPEAKER_00" {
		t.Fatalf("unexpected speaker %q", transcript.Speaker)
	}
	if len(transcript.Words) != 1 || transcript.Words[0].Word != "Se" {
		t.Fatalf("unexpected words: %v", transcript.Words)
	}
}

func TestDecodeControlEvents(t *testing.T) {
	cases := []struct {
		payload  string
		wantType string
	}{
		{`{"type":"status","status":"connected"}`, TypeStatus},
		{`{"type":"speech_started","timestamp":1.5}`, TypeSpeechStarted},
		{`{"type":"utterance_end","timestamp":4.2}`, TypeUtteranceEnd},
		{`{"type":"error","message":"backend overloaded"}`, TypeError},
	}
	for _, tc := range cases {
		evt, err := DecodeEvent([]byte(tc.payload))
		if err != nil {
			t.Fatalf("decode %s: %v", tc.payload, err)
		}
		if evt.EventType() != tc.wantType {
			t.Fatalf("expected %s, got %s", tc.wantType, evt.EventType())
		}
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"telemetry","value":1}`))
	var unknown *ErrUnknownType
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if unknown.Tag != "telemetry" {
		t.Fatalf("unexpected tag %q", unknown.Tag)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
