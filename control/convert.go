package control

import (
	"fmt"
	"math"
	"time"

	"github.com/xaionaro-go/screenrecorder"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldCaptureToken   = "capture_token"
	fieldOutputPath     = "output_path"
	fieldWidth          = "width"
	fieldHeight         = "height"
	fieldRotation       = "rotation"
	fieldPriority       = "priority"
	fieldMaxDurationSec = "max_duration_sec"

	fieldVideoSamplesWritten    = "video_samples_written"
	fieldAudioSamplesWritten    = "audio_samples_written"
	fieldAudioSamplesDropped    = "audio_samples_dropped"
	fieldVideoIterationsSkipped = "video_iterations_skipped"
	fieldBytesWritten           = "bytes_written"
)

func startRequestToProtobuf(req screenrecorder.StartRequest) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldCaptureToken: structpb.NewStringValue(req.CaptureToken.Get()),
		fieldOutputPath:   structpb.NewStringValue(req.OutputPath),
		fieldWidth:        structpb.NewNumberValue(float64(req.Width)),
		fieldHeight:       structpb.NewNumberValue(float64(req.Height)),
		fieldRotation:     structpb.NewNumberValue(float64(req.Rotation)),
	}
	if req.Priority != screenrecorder.PriorityUndefined {
		fields[fieldPriority] = structpb.NewNumberValue(float64(req.Priority.Level()))
	}
	if req.MaxDuration > 0 {
		fields[fieldMaxDurationSec] = structpb.NewNumberValue(req.MaxDuration.Seconds())
	}
	return &structpb.Struct{Fields: fields}
}

func startRequestFromProtobuf(in *structpb.Struct) (screenrecorder.StartRequest, error) {
	fields := in.GetFields()
	req := screenrecorder.StartRequest{
		CaptureToken: screenrecorder.NewCaptureToken(fields[fieldCaptureToken].GetStringValue()),
		OutputPath:   fields[fieldOutputPath].GetStringValue(),
		Rotation:     screenrecorder.RotationUnset,
	}

	var err error
	if req.Width, err = getUint32(fields, fieldWidth); err != nil {
		return req, err
	}
	if req.Height, err = getUint32(fields, fieldHeight); err != nil {
		return req, err
	}
	if v, ok := fields[fieldRotation]; ok {
		req.Rotation = screenrecorder.Rotation(int(v.GetNumberValue()))
	}
	if v, ok := fields[fieldPriority]; ok {
		req.Priority = screenrecorder.PriorityFromLevel(int(v.GetNumberValue()))
	}
	if v, ok := fields[fieldMaxDurationSec]; ok {
		req.MaxDuration = time.Duration(v.GetNumberValue() * float64(time.Second))
	}
	return req, nil
}

func getUint32(fields map[string]*structpb.Value, key string) (uint32, error) {
	v, ok := fields[key]
	if !ok {
		return 0, nil
	}
	n := v.GetNumberValue()
	if n < 0 || n > math.MaxUint32 || n != math.Trunc(n) {
		return 0, fmt.Errorf("field '%s' must be a non-negative integer, got %v", key, n)
	}
	return uint32(n), nil
}

func statsToProtobuf(stats *screenrecorder.Stats) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldVideoSamplesWritten:    structpb.NewNumberValue(float64(stats.VideoSamplesWritten)),
		fieldAudioSamplesWritten:    structpb.NewNumberValue(float64(stats.AudioSamplesWritten)),
		fieldAudioSamplesDropped:    structpb.NewNumberValue(float64(stats.AudioSamplesDropped)),
		fieldVideoIterationsSkipped: structpb.NewNumberValue(float64(stats.VideoIterationsSkipped)),
		fieldBytesWritten:           structpb.NewNumberValue(float64(stats.BytesWritten)),
	}}
}

func statsFromProtobuf(in *structpb.Struct) *screenrecorder.Stats {
	fields := in.GetFields()
	return &screenrecorder.Stats{
		VideoSamplesWritten:    uint64(fields[fieldVideoSamplesWritten].GetNumberValue()),
		AudioSamplesWritten:    uint64(fields[fieldAudioSamplesWritten].GetNumberValue()),
		AudioSamplesDropped:    uint64(fields[fieldAudioSamplesDropped].GetNumberValue()),
		VideoIterationsSkipped: uint64(fields[fieldVideoIterationsSkipped].GetNumberValue()),
		BytesWritten:           uint64(fields[fieldBytesWritten].GetNumberValue()),
	}
}
