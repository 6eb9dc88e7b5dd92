package domain

import (
	"reflect"
	"testing"
)

func TestConvOptions_Args_Full(t *testing.T) {
	text := true
	o := ConvOptions{
		Layout:      true,
		Compress:    false,
		Precise:     true,
		TextSidecar: &text,
		Series:      "5",
	}

	got := o.Args("/in/sub-0001", "/out/sub-0001")
	want := []string{
		"-b", "y", "-z", "n", "-p", "y",
		"-t", "y",
		"-n", "5",
		"-f", DefaultNameTemplate,
		"-o", "/out/sub-0001",
		"/in/sub-0001",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("参数序列不符合契约：\ngot  %v\nwant %v", got, want)
	}
}

func TestConvOptions_Args_OptionalFlagsOmitted(t *testing.T) {
	// TextSidecar=nil 不输出 -t；Series=="" 不输出 -n。
	o := ConvOptions{Layout: true, Compress: true, Precise: true, NameTemplate: "%s"}

	got := o.Args("in", "out")
	want := []string{"-b", "y", "-z", "y", "-p", "y", "-f", "%s", "-o", "out", "in"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("可选参数不应出现：\ngot  %v\nwant %v", got, want)
	}
}

func TestConvOptions_Args_TextSidecarExplicitNo(t *testing.T) {
	no := false
	o := ConvOptions{TextSidecar: &no}

	got := o.Args("in", "out")
	want := []string{"-b", "n", "-z", "n", "-p", "n", "-t", "n", "-f", DefaultNameTemplate, "-o", "out", "in"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("显式 -t n 渲染错误：\ngot  %v\nwant %v", got, want)
	}
}
