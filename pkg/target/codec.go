package target

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gocv.io/x/gocv"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

// 目标库文件使用 protobuf 编码，消息结构如下:
//
//	message Library   { uint32 version = 1; repeated Target targets = 2; }
//	message Target    { string id = 1; string name = 2; string method = 3; Box box = 4;
//	                    bytes image_png = 5; google.protobuf.Timestamp created_at = 6;
//	                    google.protobuf.Timestamp last_detected_at = 7; int64 detection_count = 8;
//	                    bool active = 9; Features features = 10; }
//	message Box       { int32 x = 1; int32 y = 2; int32 width = 3; int32 height = 4; }
//	message Features  { repeated KeyPoint keypoints = 1; int32 rows = 2; int32 cols = 3;
//	                    int32 type = 4; bytes data = 5; }
//	message KeyPoint  { double x = 1; double y = 2; double size = 3; double angle = 4;
//	                    double response = 5; int32 octave = 6; int32 class_id = 7; }
const libraryVersion = 1

var errTruncated = errors.New("数据截断")

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int) []byte {
	return appendVarint(b, num, uint64(int64(v)))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendTime(b []byte, num protowire.Number, t time.Time) ([]byte, error) {
	data, err := proto.Marshal(timestamppb.New(t))
	if err != nil {
		return b, fmt.Errorf("编码时间失败: %w", err)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, data), nil
}

func decodeTime(data []byte) (time.Time, error) {
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(data, &ts); err != nil {
		return time.Time{}, fmt.Errorf("解码时间失败: %w", err)
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, fmt.Errorf("时间无效: %w", err)
	}
	return ts.AsTime().Local(), nil
}

// field 解码得到的一个字段
type field struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64
	bytes []byte
}

// walkFields 逐个解析消息字段，未知字段类型会被跳过
func walkFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("解析字段标签失败: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.value, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.value = uint64(v)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("解析字段 %d 失败: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func encodeLibrary(targets []*Target) ([]byte, error) {
	b := appendVarint(nil, 1, libraryVersion)
	for _, t := range targets {
		msg, err := encodeTarget(t)
		if err != nil {
			return nil, fmt.Errorf("编码目标 %s 失败: %w", t.ID, err)
		}
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}
	return b, nil
}

func decodeLibrary(b []byte) ([]*Target, error) {
	var (
		targets []*Target
		version uint64
	)
	err := walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			version = f.value
		case 2:
			t, err := decodeTarget(f.bytes)
			if err != nil {
				return err
			}
			targets = append(targets, t)
		}
		return nil
	})
	if err == nil && version > libraryVersion {
		err = fmt.Errorf("不支持的目标库版本: %d", version)
	}
	if err != nil {
		for _, t := range targets {
			t.Close()
		}
		return nil, err
	}
	return targets, nil
}

func encodeTarget(t *Target) ([]byte, error) {
	var b []byte
	b = appendString(b, 1, t.ID)
	b = appendString(b, 2, t.Name)
	b = appendString(b, 3, string(t.Method))

	var box []byte
	box = appendInt(box, 1, t.BoundingBox.X)
	box = appendInt(box, 2, t.BoundingBox.Y)
	box = appendInt(box, 3, t.BoundingBox.Width)
	box = appendInt(box, 4, t.BoundingBox.Height)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, box)

	if !t.Image.Empty() {
		png, err := cv.EncodePNG(t.Image)
		if err != nil {
			return nil, err
		}
		b = appendBytes(b, 5, png)
	}

	var err error
	if b, err = appendTime(b, 6, t.CreatedAt); err != nil {
		return nil, err
	}
	if t.LastDetectedAt != nil {
		if b, err = appendTime(b, 7, *t.LastDetectedAt); err != nil {
			return nil, err
		}
	}
	b = appendInt(b, 8, t.DetectionCount)
	if t.Active {
		b = appendVarint(b, 9, 1)
	}

	if fs, ok := t.Descriptor.(*cv.FeatureSet); ok {
		b = appendBytes(b, 10, encodeFeatures(fs))
	}
	return b, nil
}

func encodeFeatures(fs *cv.FeatureSet) []byte {
	var b []byte
	for _, kp := range fs.Keypoints {
		var k []byte
		k = appendDouble(k, 1, kp.X)
		k = appendDouble(k, 2, kp.Y)
		k = appendDouble(k, 3, kp.Size)
		k = appendDouble(k, 4, kp.Angle)
		k = appendDouble(k, 5, kp.Response)
		k = appendInt(k, 6, kp.Octave)
		k = appendInt(k, 7, kp.ClassID)
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, k)
	}
	if !fs.Descriptors.Empty() {
		b = appendInt(b, 2, fs.Descriptors.Rows())
		b = appendInt(b, 3, fs.Descriptors.Cols())
		b = appendInt(b, 4, int(fs.Descriptors.Type()))
		b = appendBytes(b, 5, fs.Descriptors.ToBytes())
	}
	return b
}

// rawFeatures 解码后尚未转换为 Mat 的特征数据
type rawFeatures struct {
	keypoints []gocv.KeyPoint
	rows      int
	cols      int
	typ       gocv.MatType
	data      []byte
}

func decodeFeatures(b []byte) (*rawFeatures, error) {
	rf := &rawFeatures{}
	err := walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			kp, err := decodeKeyPoint(f.bytes)
			if err != nil {
				return err
			}
			rf.keypoints = append(rf.keypoints, kp)
		case 2:
			rf.rows = int(int64(f.value))
		case 3:
			rf.cols = int(int64(f.value))
		case 4:
			rf.typ = gocv.MatType(int64(f.value))
		case 5:
			rf.data = f.bytes
		}
		return nil
	})
	return rf, err
}

func decodeKeyPoint(b []byte) (gocv.KeyPoint, error) {
	var kp gocv.KeyPoint
	err := walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			kp.X = math.Float64frombits(f.value)
		case 2:
			kp.Y = math.Float64frombits(f.value)
		case 3:
			kp.Size = math.Float64frombits(f.value)
		case 4:
			kp.Angle = math.Float64frombits(f.value)
		case 5:
			kp.Response = math.Float64frombits(f.value)
		case 6:
			kp.Octave = int(int64(f.value))
		case 7:
			kp.ClassID = int(int64(f.value))
		}
		return nil
	})
	return kp, err
}

func decodeTarget(b []byte) (*Target, error) {
	t := &Target{}
	var (
		png      []byte
		features *rawFeatures
	)
	err := walkFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			t.ID = string(f.bytes)
		case 2:
			t.Name = string(f.bytes)
		case 3:
			t.Method = cv.MatchMethod(f.bytes)
		case 4:
			err = walkFields(f.bytes, func(bf field) error {
				v := int(int64(bf.value))
				switch bf.num {
				case 1:
					t.BoundingBox.X = v
				case 2:
					t.BoundingBox.Y = v
				case 3:
					t.BoundingBox.Width = v
				case 4:
					t.BoundingBox.Height = v
				}
				return nil
			})
		case 5:
			png = f.bytes
		case 6:
			t.CreatedAt, err = decodeTime(f.bytes)
		case 7:
			var ts time.Time
			if ts, err = decodeTime(f.bytes); err == nil {
				t.LastDetectedAt = &ts
			}
		case 8:
			t.DetectionCount = int(int64(f.value))
		case 9:
			t.Active = f.value != 0
		case 10:
			features, err = decodeFeatures(f.bytes)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if t.ID == "" {
		return nil, errors.New("目标缺少 ID")
	}
	if !t.Method.Valid() {
		return nil, fmt.Errorf("目标 %s 的匹配方法无效: %q", t.ID, t.Method)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("目标 %s 缺少图像", t.ID)
	}

	if t.Image, err = cv.DecodeImage(png); err != nil {
		return nil, fmt.Errorf("目标 %s: %w", t.ID, err)
	}
	if t.Descriptor, err = restoreDescriptor(t.Method, t.Image, features); err != nil {
		t.Image.Close()
		return nil, fmt.Errorf("目标 %s: %w", t.ID, err)
	}
	return t, nil
}

// restoreDescriptor 根据保存的数据重建特征，不重新提取
func restoreDescriptor(method cv.MatchMethod, img gocv.Mat, rf *rawFeatures) (cv.Descriptor, error) {
	if method == cv.MatchMethodTemplate {
		return cv.NewTemplateDescriptor(img), nil
	}

	fs := &cv.FeatureSet{Image: cv.ToGray(img)}
	if rf == nil || rf.rows == 0 {
		fs.Descriptors = gocv.NewMat()
		return fs, nil
	}
	if len(rf.keypoints) != rf.rows {
		fs.Image.Close()
		return nil, fmt.Errorf("关键点数量 %d 与描述子行数 %d 不一致", len(rf.keypoints), rf.rows)
	}
	if rf.typ != gocv.MatTypeCV8UC1 || len(rf.data) != rf.rows*rf.cols {
		fs.Image.Close()
		return nil, errTruncated
	}

	desc, err := cv.NewMatFromBytesCopy(rf.rows, rf.cols, rf.typ, rf.data)
	if err != nil {
		fs.Image.Close()
		return nil, err
	}
	fs.Keypoints = rf.keypoints
	fs.Descriptors = desc
	return fs, nil
}
