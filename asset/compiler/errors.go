package compiler

import "errors"

var (
	ErrUnsupportedIndexWidth = errors.New("compiler: 32-bit triangle indices are not supported; split primitives with more than 65535 vertices")
	ErrEmptyIndexBuffer      = errors.New("compiler: primitive index buffer is empty or not a multiple of 3")
	ErrMissingNormals        = errors.New("compiler: primitive does not define a normal for every vertex")
	ErrIndexOutOfRange       = errors.New("compiler: primitive index references a missing vertex")
	ErrInvalidMaterialRef    = errors.New("compiler: primitive references an undefined material")
	ErrInvalidNodeRef        = errors.New("compiler: scene graph contains an invalid node reference")
)
