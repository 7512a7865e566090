package serial

import (
	"errors"
	"testing"
	"time"

	bugserial "go.bug.st/serial"
)

func connectFake(t *testing.T) (*Session, *fakePort) {
	t.Helper()
	fp := newFakePort()
	useFakePort(t, fp)
	s := NewSession()
	if err := s.Connect(Options{PortName: "/dev/ttyFAKE0"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _, _ = s.Disconnect() })
	return s, fp
}

func TestConnectAppliesDefaults(t *testing.T) {
	fp := newFakePort()
	mode := useFakePort(t, fp)

	s := NewSession()
	if err := s.Connect(Options{PortName: "/dev/ttyFAKE0"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer s.Disconnect()

	if mode.BaudRate != DefaultBaudRate {
		t.Errorf("Expected baud %d, got %d", DefaultBaudRate, mode.BaudRate)
	}
	if mode.DataBits != 8 || mode.Parity != bugserial.NoParity || mode.StopBits != bugserial.OneStopBit {
		t.Errorf("Expected 8N1 framing, got %+v", *mode)
	}
	if !s.IsOpen() {
		t.Error("Expected session to be open")
	}
	if s.PortName() != "/dev/ttyFAKE0" {
		t.Errorf("Expected port name /dev/ttyFAKE0, got %s", s.PortName())
	}
}

func TestConnectPortUnavailable(t *testing.T) {
	orig := openPort
	openPort = func(string, *bugserial.Mode) (Port, error) {
		return nil, errors.New("no such file or directory")
	}
	defer func() { openPort = orig }()

	s := NewSession()
	err := s.Connect(Options{PortName: "/dev/missing"})
	if !IsCode(err, ErrCodePortUnavailable) {
		t.Fatalf("Expected PORT_UNAVAILABLE, got %v", err)
	}
	if s.IsOpen() {
		t.Error("Session should stay closed after failed connect")
	}
}

func TestConnectRequiresPortName(t *testing.T) {
	s := NewSession()
	if err := s.Connect(Options{}); !IsCode(err, ErrCodePortUnavailable) {
		t.Errorf("Expected PORT_UNAVAILABLE for empty name, got %v", err)
	}
}

func TestConnectWhileOpenIsRejected(t *testing.T) {
	s, _ := connectFake(t)

	err := s.Connect(Options{PortName: "/dev/ttyFAKE1"})
	if !IsCode(err, ErrCodeAlreadyConnected) {
		t.Fatalf("Expected ALREADY_CONNECTED, got %v", err)
	}
	if s.PortName() != "/dev/ttyFAKE0" {
		t.Errorf("Handle should not be replaced, port is %s", s.PortName())
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s, fp := connectFake(t)

	status, err := s.Disconnect()
	if err != nil || status != CloseStatusDisconnected {
		t.Fatalf("First disconnect: status=%s err=%v", status, err)
	}
	if !fp.IsClosed() {
		t.Error("Expected device handle to be closed")
	}

	status, err = s.Disconnect()
	if err != nil || status != CloseStatusAlreadyClosed {
		t.Errorf("Second disconnect: status=%s err=%v", status, err)
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	s := NewSession()

	if err := s.WriteBytes([]byte("-")); !IsCode(err, ErrCodeNotConnected) {
		t.Errorf("WriteBytes: expected NOT_CONNECTED, got %v", err)
	}
	if err := s.WriteLine("12345"); !IsCode(err, ErrCodeNotConnected) {
		t.Errorf("WriteLine: expected NOT_CONNECTED, got %v", err)
	}
	if _, _, err := s.ReadLine(10 * time.Millisecond); !IsCode(err, ErrCodeNotConnected) {
		t.Errorf("ReadLine: expected NOT_CONNECTED, got %v", err)
	}
	if s.LineAvailable() {
		t.Error("LineAvailable should be false when closed")
	}
}

func TestWriteLineAppendsNewline(t *testing.T) {
	s, fp := connectFake(t)

	if err := s.WriteBytes([]byte(";")); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}
	if err := s.WriteLine("12345"); err != nil {
		t.Fatalf("WriteLine failed: %v", err)
	}

	if got := fp.Written(); got != ";12345\n" {
		t.Errorf("Expected %q written, got %q", ";12345\n", got)
	}
}

func TestShortWriteClosesSession(t *testing.T) {
	s, fp := connectFake(t)
	fp.shortWrite = true

	err := s.WriteLine("B002")
	if !IsCode(err, ErrCodeIOFailure) {
		t.Fatalf("Expected IO_FAILURE, got %v", err)
	}
	if s.IsOpen() {
		t.Error("Session should close after short write")
	}
}

func TestReadLineReassemblesFrames(t *testing.T) {
	s, fp := connectFake(t)

	fp.feed("A0")
	fp.feed("01\r\nB002\n")

	line, ok, err := s.ReadLine(500 * time.Millisecond)
	if err != nil || !ok || line != "A001" {
		t.Fatalf("First read: line=%q ok=%v err=%v", line, ok, err)
	}
	if !s.LineAvailable() {
		t.Error("Expected second frame to be buffered")
	}

	line, ok, err = s.ReadLine(500 * time.Millisecond)
	if err != nil || !ok || line != "B002" {
		t.Fatalf("Second read: line=%q ok=%v err=%v", line, ok, err)
	}
	if s.LineAvailable() {
		t.Error("Buffer should be empty")
	}
}

func TestReadLineNoDataIsNotAnError(t *testing.T) {
	s, fp := connectFake(t)
	fp.feed("partial")

	start := time.Now()
	line, ok, err := s.ReadLine(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ok || line != "" {
		t.Errorf("Expected no line, got %q ok=%v", line, ok)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("ReadLine exceeded its timeout: %v", elapsed)
	}

	fp.feed(" tail\n")
	line, ok, err = s.ReadLine(500 * time.Millisecond)
	if err != nil || !ok || line != "partial tail" {
		t.Errorf("Expected partial frame to be kept, got %q ok=%v err=%v", line, ok, err)
	}
}

func TestReadLineDropsInvalidUTF8(t *testing.T) {
	s, fp := connectFake(t)
	fp.feed("ab\xffc\n")

	line, ok, err := s.ReadLine(500 * time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("ReadLine: ok=%v err=%v", ok, err)
	}
	if line != "abc" {
		t.Errorf("Expected %q, got %q", "abc", line)
	}
}

func TestReadLineEmptyFrame(t *testing.T) {
	s, fp := connectFake(t)
	fp.feed("  \r\n")

	line, ok, err := s.ReadLine(500 * time.Millisecond)
	if err != nil || !ok || line != "" {
		t.Errorf("Expected empty frame, got %q ok=%v err=%v", line, ok, err)
	}
}

func TestReadFailureClosesSession(t *testing.T) {
	s, fp := connectFake(t)
	fp.failReads(errUnplugged)

	_, _, err := s.ReadLine(100 * time.Millisecond)
	if !IsCode(err, ErrCodeIOFailure) {
		t.Fatalf("Expected IO_FAILURE, got %v", err)
	}
	if !errors.Is(err, errUnplugged) {
		t.Errorf("Expected cause to be preserved, got %v", err)
	}
	if s.IsOpen() {
		t.Error("Session should close after read failure")
	}
	if !fp.IsClosed() {
		t.Error("Device handle should be closed")
	}

	status, _ := s.Disconnect()
	if status != CloseStatusAlreadyClosed {
		t.Errorf("Expected already_closed after failure, got %s", status)
	}
}

func TestDisconnectDuringRead(t *testing.T) {
	s, _ := connectFake(t)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := s.ReadLine(time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !IsCode(err, ErrCodeNotConnected) {
			t.Errorf("Expected NOT_CONNECTED from interrupted read, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLine did not return after disconnect")
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrCodeIOFailure, "write failed", cause)

	if err.Error() != "IO_FAILURE: write failed: boom" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected Unwrap to expose cause")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("Plain errors should have no code")
	}
	if IsCode(nil, ErrCodeIOFailure) {
		t.Error("nil should not match any code")
	}
}
