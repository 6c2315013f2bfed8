// Package testutil builds small archives and class files for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// Epoch is the modification time given to entries that do not set one.
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// JarEntry describes one entry of a test archive.
type JarEntry struct {
	Name     string
	Content  []byte
	Method   uint16
	Modified time.Time
}

// BuildJar returns a zip archive with the given entries, in order.
func BuildJar(t testing.TB, entries ...JarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		modified := e.Modified
		if modified.IsZero() {
			modified = Epoch
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   e.Method,
			Modified: modified,
		})
		if err != nil {
			t.Fatalf("failed to add %s: %v", e.Name, err)
		}
		if len(e.Content) > 0 {
			if _, err := w.Write(e.Content); err != nil {
				t.Fatalf("failed to write %s: %v", e.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close jar: %v", err)
	}
	return buf.Bytes()
}

// SimpleJar returns a jar with a manifest, a class carrying the default debug
// attributes and a resource.
func SimpleJar(t testing.TB, className string) []byte {
	t.Helper()
	return BuildJar(t,
		JarEntry{Name: "META-INF/"},
		JarEntry{Name: "META-INF/MANIFEST.MF", Content: []byte("Manifest-Version: 1.0\r\n\r\n"), Method: zip.Deflate},
		JarEntry{Name: "com/example/" + className + ".class", Content: BuildClass(className, nil), Method: zip.Deflate},
		JarEntry{Name: "com/example/messages.properties", Content: []byte("greeting=hello\n"), Method: zip.Deflate},
	)
}

// WriteFile writes data under dir/rel, creating parent directories.
func WriteFile(t testing.TB, dir, rel string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

type constantPool struct {
	buf   bytes.Buffer
	next  uint16
	utf8s map[string]uint16
}

func (cp *constantPool) utf8(s string) uint16 {
	if idx, ok := cp.utf8s[s]; ok {
		return idx
	}
	idx := cp.next
	cp.buf.WriteByte(1)
	binary.Write(&cp.buf, binary.BigEndian, uint16(len(s)))
	cp.buf.WriteString(s)
	cp.utf8s[s] = idx
	cp.next++
	return idx
}

func (cp *constantPool) class(name string) uint16 {
	nameIdx := cp.utf8(name)
	idx := cp.next
	cp.buf.WriteByte(7)
	binary.Write(&cp.buf, binary.BigEndian, nameIdx)
	cp.next++
	return idx
}

func (cp *constantPool) long(v int64) {
	cp.buf.WriteByte(5)
	binary.Write(&cp.buf, binary.BigEndian, v)
	cp.next += 2
}

func attribute(nameIdx uint16, info []byte) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, nameIdx)
	binary.Write(&b, binary.BigEndian, uint32(len(info)))
	b.Write(info)
	return b.Bytes()
}

func attributes(attrs ...[]byte) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint16(len(attrs)))
	for _, a := range attrs {
		b.Write(a)
	}
	return b.Bytes()
}

// BuildClass returns a minimal class file for className with one field, one
// method whose Code carries LineNumberTable and LocalVariableTable, and the
// SourceFile and Deprecated class attributes. extraClassAttrs adds further
// empty class-level attributes by name.
func BuildClass(className string, extraClassAttrs []string) []byte {
	return buildClass(className, extraClassAttrs, nil)
}

// BuildClassWithCodeAttrs is BuildClass with extra attributes placed inside
// the method's Code attribute instead of at class level.
func BuildClassWithCodeAttrs(className string, extraCodeAttrs []string) []byte {
	return buildClass(className, nil, extraCodeAttrs)
}

func buildClass(className string, extraClassAttrs, extraCodeAttrs []string) []byte {
	cp := &constantPool{next: 1, utf8s: make(map[string]uint16)}

	thisClass := cp.class("com/example/" + className)
	superClass := cp.class("java/lang/Object")
	cp.long(42)
	sourceFile := cp.utf8("SourceFile")
	sourceName := cp.utf8(className + ".java")
	code := cp.utf8("Code")
	lineNumbers := cp.utf8("LineNumberTable")
	localVars := cp.utf8("LocalVariableTable")
	deprecated := cp.utf8("Deprecated")
	constantValue := cp.utf8("ConstantValue")
	fieldName := cp.utf8("count")
	fieldDesc := cp.utf8("I")
	methodName := cp.utf8("<init>")
	methodDesc := cp.utf8("()V")
	extra := make([]uint16, len(extraClassAttrs))
	for i, name := range extraClassAttrs {
		extra[i] = cp.utf8(name)
	}
	extraCode := make([]uint16, len(extraCodeAttrs))
	for i, name := range extraCodeAttrs {
		extraCode[i] = cp.utf8(name)
	}

	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&b, binary.BigEndian, uint16(0))  // minor
	binary.Write(&b, binary.BigEndian, uint16(52)) // major
	binary.Write(&b, binary.BigEndian, cp.next)
	b.Write(cp.buf.Bytes())

	binary.Write(&b, binary.BigEndian, uint16(0x0021)) // public super
	binary.Write(&b, binary.BigEndian, thisClass)
	binary.Write(&b, binary.BigEndian, superClass)
	binary.Write(&b, binary.BigEndian, uint16(0)) // interfaces

	// one field with ConstantValue and Deprecated
	binary.Write(&b, binary.BigEndian, uint16(1))
	binary.Write(&b, binary.BigEndian, uint16(0x0019))
	binary.Write(&b, binary.BigEndian, fieldName)
	binary.Write(&b, binary.BigEndian, fieldDesc)
	b.Write(attributes(
		attribute(constantValue, []byte{0x00, 0x03}),
		attribute(deprecated, nil),
	))

	// one method with Code{return} carrying debug tables
	var codeInfo bytes.Buffer
	binary.Write(&codeInfo, binary.BigEndian, uint16(1)) // max_stack
	binary.Write(&codeInfo, binary.BigEndian, uint16(1)) // max_locals
	binary.Write(&codeInfo, binary.BigEndian, uint32(1)) // code_length
	codeInfo.WriteByte(0xB1)                             // return
	binary.Write(&codeInfo, binary.BigEndian, uint16(0)) // exception_table_length
	codeAttrs := [][]byte{
		attribute(lineNumbers, []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x07}),
		attribute(localVars, []byte{0x00, 0x00}),
	}
	for _, idx := range extraCode {
		codeAttrs = append(codeAttrs, attribute(idx, []byte{0xBE, 0xEF}))
	}
	codeInfo.Write(attributes(codeAttrs...))

	binary.Write(&b, binary.BigEndian, uint16(1))
	binary.Write(&b, binary.BigEndian, uint16(0x0001))
	binary.Write(&b, binary.BigEndian, methodName)
	binary.Write(&b, binary.BigEndian, methodDesc)
	b.Write(attributes(attribute(code, codeInfo.Bytes())))

	classAttrs := [][]byte{
		attribute(sourceFile, []byte{byte(sourceName >> 8), byte(sourceName)}),
		attribute(deprecated, nil),
	}
	for _, idx := range extra {
		classAttrs = append(classAttrs, attribute(idx, []byte{0xDE, 0xAD}))
	}
	b.Write(attributes(classAttrs...))

	return b.Bytes()
}
