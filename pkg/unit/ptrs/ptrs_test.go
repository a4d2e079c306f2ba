package ptrs

import "testing"

func TestInt(t *testing.T) {
	p := Int(42)
	if p == nil || *p != 42 {
		t.Fatalf("Int(42) = %v", p)
	}
}

func TestInt64(t *testing.T) {
	p := Int64(9999)
	if p == nil || *p != 9999 {
		t.Fatalf("Int64(9999) = %v", p)
	}
}

func TestFloat64(t *testing.T) {
	p := Float64(85.5)
	if p == nil || *p != 85.5 {
		t.Fatalf("Float64(85.5) = %v", p)
	}
}

func TestString(t *testing.T) {
	p := String("nginx")
	if p == nil || *p != "nginx" {
		t.Fatalf("String(nginx) = %v", p)
	}
}

func TestBool(t *testing.T) {
	if p := Bool(true); p == nil || !*p {
		t.Fatal("Bool(true) should point at true")
	}
	if p := Bool(false); p == nil || *p {
		t.Fatal("Bool(false) should point at false")
	}
}

func TestPointersAreIndependent(t *testing.T) {
	v := 10
	p := Int(v)
	v = 20
	_ = v
	if *p != 10 {
		t.Errorf("*p = %d, want 10", *p)
	}
}
