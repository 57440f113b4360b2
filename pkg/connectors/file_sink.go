package connectors

import (
	"context"
	"io"
	"os"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// FileSink is the `save` half of the `write FMT [to SINK]` composite
// (spec §6) that does not require a joined byte stream: each incoming
// Bytes chunk is written to the underlying writer as it arrives, in
// order, so a fused print+save node never needs to buffer.
type FileSink struct {
	writer io.Writer
	closer io.Closer
}

// NewFileSink opens path for appending raw byte chunks.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.Newf(errs.InvalidConfiguration, "file_sink", "open %q: %w", path, err)
	}
	return &FileSink{writer: f, closer: f}, nil
}

// SetWriter overrides the output writer (default: the opened file); for
// tests.
func (f *FileSink) SetWriter(w io.Writer) { f.writer = w }

func (f *FileSink) Name() string                { return "file_sink" }
func (f *FileSink) InputKind() element.Kind     { return element.KindBytes }
func (f *FileSink) Location() operator.Location { return operator.Local }
func (f *FileSink) Detached() bool              { return false }

// RequiresJoining implements ops.Joiner: false, since each chunk is
// written in arrival order and needs no reassembly.
func (f *FileSink) RequiresJoining() bool { return false }

func (f *FileSink) InferOutput(in element.Kind) (element.Kind, error) {
	if in != element.KindBytes {
		return element.KindNone, errs.Newf(errs.TypeMismatch, f.Name(), "requires Bytes input, got %s", in)
	}
	return element.KindNone, nil
}

func (f *FileSink) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	return &fileSinkSequence{sink: f, input: input}, nil
}

type fileSinkSequence struct {
	sink  *FileSink
	input operator.Sequence
}

func (s *fileSinkSequence) PollNext(ctx context.Context) (operator.Step, error) {
	step, err := s.input.PollNext(ctx)
	if err != nil {
		return operator.Step{}, err
	}
	switch step.Kind {
	case operator.Pending, operator.ReadyEmpty:
		return step, nil
	case operator.End:
		if s.sink.closer != nil {
			s.sink.closer.Close()
		}
		return step, nil
	}

	b := step.Value.(element.Bytes)
	_, writeErr := s.sink.writer.Write(b.Data())
	b.Release()
	if writeErr != nil {
		return operator.Step{}, errs.New(errs.LogicError, s.sink.Name(), writeErr)
	}
	return operator.Step{Kind: operator.ReadyEmpty}, nil
}

// JoinedUploadSink is the `save` half that DOES require a joined byte
// stream — modeling a single-shot upload where the whole payload must be
// known as one contiguous buffer (e.g. to set a Content-Length) before
// the first byte is written.
type JoinedUploadSink struct {
	writer io.Writer
}

// NewJoinedUploadSink creates a sink that buffers all input and performs
// one write at end-of-sequence.
func NewJoinedUploadSink(w io.Writer) *JoinedUploadSink {
	return &JoinedUploadSink{writer: w}
}

func (j *JoinedUploadSink) Name() string                { return "joined_upload_sink" }
func (j *JoinedUploadSink) InputKind() element.Kind     { return element.KindBytes }
func (j *JoinedUploadSink) Location() operator.Location { return operator.Local }
func (j *JoinedUploadSink) Detached() bool              { return false }
func (j *JoinedUploadSink) RequiresJoining() bool       { return true }

func (j *JoinedUploadSink) InferOutput(in element.Kind) (element.Kind, error) {
	if in != element.KindBytes {
		return element.KindNone, errs.Newf(errs.TypeMismatch, j.Name(), "requires Bytes input, got %s", in)
	}
	return element.KindNone, nil
}

func (j *JoinedUploadSink) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	return &joinedUploadSequence{sink: j, input: input}, nil
}

type joinedUploadSequence struct {
	sink  *JoinedUploadSink
	input operator.Sequence
	buf   []byte
}

func (s *joinedUploadSequence) PollNext(ctx context.Context) (operator.Step, error) {
	step, err := s.input.PollNext(ctx)
	if err != nil {
		return operator.Step{}, err
	}
	switch step.Kind {
	case operator.Pending:
		return step, nil
	case operator.ReadyEmpty:
		return step, nil
	case operator.End:
		if len(s.buf) > 0 {
			if _, err := s.sink.writer.Write(s.buf); err != nil {
				return operator.Step{}, errs.New(errs.LogicError, s.sink.Name(), err)
			}
			s.buf = nil
		}
		return step, nil
	}

	b := step.Value.(element.Bytes)
	s.buf = append(s.buf, b.Data()...)
	b.Release()
	return operator.Step{Kind: operator.ReadyEmpty}, nil
}
