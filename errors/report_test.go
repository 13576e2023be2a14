package errors

import (
	"errors"
	"testing"
)

func TestSQLState_Packed(t *testing.T) {
	codes := []SQLState{
		CodeSuccessfulCompletion,
		CodeDataException,
		CodeOutOfMemory,
		CodeFeatureNotSupported,
		CodeInternalError,
		CodeRaiseException,
	}
	for _, c := range codes {
		if !c.Valid() {
			t.Errorf("%s should be valid", c)
		}
		if got := UnpackSQLState(c.Packed()); got != c {
			t.Errorf("UnpackSQLState(%s.Packed()) = %s", c, got)
		}
	}

	if CodeSuccessfulCompletion.Packed() != 0 {
		t.Errorf("00000 should pack to 0, got %d", CodeSuccessfulCompletion.Packed())
	}
	if CodeOutOfMemory.Class() != "53" {
		t.Errorf("Class = %s", CodeOutOfMemory.Class())
	}
}

func TestSQLState_Valid(t *testing.T) {
	tests := []struct {
		code SQLState
		want bool
	}{
		{"22000", true},
		{"XX000", true},
		{"2200", false},
		{"220000", false},
		{"22a00", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.code.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestReport_CloneEqual(t *testing.T) {
	r := &Report{
		Level:    LevelError,
		Code:     CodeCheckViolation,
		Message:  "new row violates check constraint",
		Detail:   "Failing row contains (1).",
		Hint:     "check the input",
		Position: 17,
		Location: Location{File: "execMain.c", Line: 2031, Func: "ExecConstraints"},
	}
	c := r.Clone()
	if c == r {
		t.Fatal("Clone returned the same pointer")
	}
	if !c.Equal(r) {
		t.Fatal("Clone should be equal to original")
	}
	c.Hint = ""
	if c.Equal(r) {
		t.Fatal("modified clone should differ")
	}
	var nilReport *Report
	if !nilReport.Equal(nil) || nilReport.Clone() != nil {
		t.Error("nil report handling")
	}
}

func TestReport_String(t *testing.T) {
	r := &Report{Level: LevelError, Code: CodeOutOfMemory, Message: "out of memory", Detail: "Failed on request of size 8."}
	want := "ERROR:  out of memory (SQLSTATE 53200)\nDETAIL:  Failed on request of size 8."
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestReportFor(t *testing.T) {
	original := &Report{Level: LevelError, Code: CodeRaiseException, Message: "boom"}

	attached := &Report{Level: LevelError, Code: CodeDivisionByZero, Message: "division by zero"}
	withReport := New(PhaseCall, KindInvalidInput).Report(attached).Build()

	tests := []struct {
		name      string
		err       error
		wantCode  SQLState
		wantLevel Level
		same      *Report
	}{
		{"host signaled replays original", HostSignaled(original), CodeRaiseException, LevelError, original},
		{"wrapped host signal replays original", Wrap(PhaseCall, KindInvalidData, HostSignaled(original), "parsing arg 1"), CodeRaiseException, LevelError, original},
		{"attached report is used", withReport, CodeDivisionByZero, LevelError, attached},
		{"wrapped attached report is used", Wrap(PhaseCall, KindInvalidData, withReport, "arg 2"), CodeDivisionByZero, LevelError, attached},
		{"plain error is data exception", errors.New("bad input"), CodeDataException, LevelError, nil},
		{"overflow is program limit", EncodingOverflow("text", 2, 1), CodeProgramLimitExceeded, LevelError, nil},
		{"invariant is fatal", InvariantViolation("broken"), CodeInternalError, LevelFatal, nil},
		{"type mismatch", TypeMismatch(PhaseDecode, "int32", "text"), CodeDatatypeMismatch, LevelError, nil},
		{"unsupported", Unsupported(PhaseDecode, "toast"), CodeFeatureNotSupported, LevelError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ReportFor(tt.err)
			if r.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", r.Code, tt.wantCode)
			}
			if r.Level != tt.wantLevel {
				t.Errorf("Level = %s, want %s", r.Level, tt.wantLevel)
			}
			if tt.same != nil && r != tt.same {
				t.Error("report was not replayed by pointer")
			}
		})
	}

	if ReportFor(nil) != nil {
		t.Error("ReportFor(nil) should be nil")
	}
}
