package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

const classMagic = 0xCAFEBABE

// ErrNotClassFile is returned for data that does not start with the class
// file magic number.
var ErrNotClassFile = errors.New("not a class file")

// UnknownAttributeError reports a non-standard attribute while unknown
// attributes are configured to fail the pack.
type UnknownAttributeError struct {
	Name string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown attribute %q", e.Name)
}

// standardAttributes are the predefined class file attributes of Java SE.
var standardAttributes = map[string]bool{
	"ConstantValue":                        true,
	"Code":                                 true,
	"StackMapTable":                        true,
	"Exceptions":                           true,
	"InnerClasses":                         true,
	"EnclosingMethod":                      true,
	"Synthetic":                            true,
	"Signature":                            true,
	"SourceFile":                           true,
	"SourceDebugExtension":                 true,
	"LineNumberTable":                      true,
	"LocalVariableTable":                   true,
	"LocalVariableTypeTable":               true,
	"Deprecated":                           true,
	"RuntimeVisibleAnnotations":            true,
	"RuntimeInvisibleAnnotations":          true,
	"RuntimeVisibleParameterAnnotations":   true,
	"RuntimeInvisibleParameterAnnotations": true,
	"RuntimeVisibleTypeAnnotations":        true,
	"RuntimeInvisibleTypeAnnotations":      true,
	"AnnotationDefault":                    true,
	"BootstrapMethods":                     true,
	"MethodParameters":                     true,
	"Module":                               true,
	"ModulePackages":                       true,
	"ModuleMainClass":                      true,
	"NestHost":                             true,
	"NestMembers":                          true,
	"Record":                               true,
	"PermittedSubclasses":                  true,
}

// IsStandardAttribute reports whether name is a predefined class file attribute.
func IsStandardAttribute(name string) bool {
	return standardAttributes[name]
}

// AttributeFilter removes named attributes nested inside method Code
// attributes. Class, field and method attributes are never stripped, but the
// unknown attribute policy applies at every level.
type AttributeFilter struct {
	strip         map[string]bool
	failOnUnknown bool
}

func NewAttributeFilter(strip []string, failOnUnknown bool) *AttributeFilter {
	f := &AttributeFilter{
		strip:         make(map[string]bool, len(strip)),
		failOnUnknown: failOnUnknown,
	}
	for _, name := range strip {
		f.strip[name] = true
	}
	return f
}

// Filter returns class with the configured attributes removed. The constant
// pool is kept as is.
func (f *AttributeFilter) Filter(class []byte) ([]byte, error) {
	return rewriteClass(class, func(name string, inCode bool) (bool, error) {
		if inCode && f.strip[name] {
			return false, nil
		}
		if f.failOnUnknown && !standardAttributes[name] {
			return false, &UnknownAttributeError{Name: name}
		}
		return true, nil
	})
}

// AttributeNames returns the sorted set of attribute names used in class.
func AttributeNames(class []byte) ([]string, error) {
	seen := make(map[string]bool)
	if _, err := rewriteClass(class, func(name string, _ bool) (bool, error) {
		seen[name] = true
		return true, nil
	}); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// keepFunc decides whether an attribute survives. inCode is set for
// attributes nested in a Code attribute.
type keepFunc func(name string, inCode bool) (bool, error)

// classReader is a big-endian cursor with a sticky error.
type classReader struct {
	b   []byte
	off int
	err error
}

func (r *classReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *classReader) u1() uint8 {
	if p := r.next(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *classReader) u2() uint16 {
	if p := r.next(2); p != nil {
		return binary.BigEndian.Uint16(p)
	}
	return 0
}

func (r *classReader) u4() uint32 {
	if p := r.next(4); p != nil {
		return binary.BigEndian.Uint32(p)
	}
	return 0
}

func putU2(buf *bytes.Buffer, v int) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	buf.Write(b[:])
}

func putU4(buf *bytes.Buffer, v int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func rewriteClass(class []byte, keep keepFunc) ([]byte, error) {
	r := &classReader{b: class}
	if r.u4() != classMagic || r.err != nil {
		return nil, ErrNotClassFile
	}
	r.next(4) // minor_version, major_version

	utf8, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Grow(len(class))
	out.Write(class[:r.off])

	// access_flags, this_class, super_class
	out.Write(r.next(6))
	interfaces := int(r.u2())
	putU2(&out, interfaces)
	out.Write(r.next(2 * interfaces))
	if r.err != nil {
		return nil, fmt.Errorf("class header: %w", r.err)
	}

	for _, member := range []string{"field", "method"} {
		count := int(r.u2())
		putU2(&out, count)
		for i := 0; i < count; i++ {
			// access_flags, name_index, descriptor_index
			out.Write(r.next(6))
			if err := copyAttributes(r, &out, utf8, keep, false); err != nil {
				return nil, fmt.Errorf("%s %d: %w", member, i, err)
			}
		}
		if r.err != nil {
			return nil, fmt.Errorf("%s table: %w", member, r.err)
		}
	}

	if err := copyAttributes(r, &out, utf8, keep, false); err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}
	if r.off != len(class) {
		return nil, fmt.Errorf("%d trailing bytes after class attributes", len(class)-r.off)
	}
	return out.Bytes(), nil
}

// readConstantPool skips over the constant pool and returns its Utf8 entries
// by index.
func readConstantPool(r *classReader) (map[uint16]string, error) {
	count := int(r.u2())
	utf8 := make(map[uint16]string)

	for i := 1; i < count; i++ {
		tag := r.u1()
		switch tag {
		case 1: // Utf8
			n := int(r.u2())
			if p := r.next(n); p != nil {
				utf8[uint16(i)] = string(p)
			}
		case 3, 4: // Integer, Float
			r.next(4)
		case 5, 6: // Long, Double take two slots
			r.next(8)
			i++
		case 7, 8, 16, 19, 20: // Class, String, MethodType, Module, Package
			r.next(2)
		case 9, 10, 11, 12, 17, 18: // refs, NameAndType, Dynamic, InvokeDynamic
			r.next(4)
		case 15: // MethodHandle
			r.next(3)
		default:
			if r.err == nil {
				return nil, fmt.Errorf("constant pool entry %d: unknown tag %d", i, tag)
			}
		}
		if r.err != nil {
			return nil, fmt.Errorf("constant pool entry %d: %w", i, r.err)
		}
	}
	return utf8, nil
}

func copyAttributes(r *classReader, out *bytes.Buffer, utf8 map[uint16]string, keep keepFunc, inCode bool) error {
	count := int(r.u2())
	kept := make([][]byte, 0, count)

	for i := 0; i < count; i++ {
		nameIndex := r.u2()
		length := int(r.u4())
		info := r.next(length)
		if r.err != nil {
			return r.err
		}

		name, ok := utf8[nameIndex]
		if !ok {
			return fmt.Errorf("attribute name index %d is not a Utf8 constant", nameIndex)
		}
		ok, err := keep(name, inCode)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if name == "Code" {
			if info, err = rewriteCode(info, utf8, keep); err != nil {
				return fmt.Errorf("Code: %w", err)
			}
		}

		var attr bytes.Buffer
		putU2(&attr, int(nameIndex))
		putU4(&attr, len(info))
		attr.Write(info)
		kept = append(kept, attr.Bytes())
	}

	putU2(out, len(kept))
	for _, attr := range kept {
		out.Write(attr)
	}
	return nil
}

func rewriteCode(info []byte, utf8 map[uint16]string, keep keepFunc) ([]byte, error) {
	r := &classReader{b: info}
	r.next(4) // max_stack, max_locals
	codeLength := int(r.u4())
	r.next(codeLength)
	exceptions := int(r.u2())
	r.next(8 * exceptions)
	if r.err != nil {
		return nil, r.err
	}

	var out bytes.Buffer
	out.Write(info[:r.off])
	if err := copyAttributes(r, &out, utf8, keep, true); err != nil {
		return nil, err
	}
	if r.off != len(info) {
		return nil, fmt.Errorf("%d trailing bytes", len(info)-r.off)
	}
	return out.Bytes(), nil
}
