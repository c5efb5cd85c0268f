// Package hcl reads models written in HCL and turns them into the ast
// descriptions the compiler consumes.
//
// Every block becomes a description: the block type is the keyword, the
// first label is the name and attributes become facets. Nested blocks are
// children in source order, so statement bodies keep their sequence.
//
//	model "farm" {
//	  global {
//	    var "food" {
//	      type = int
//	      init = 10
//	    }
//	    reflex "grow" {
//	      set "food" { value = food + 1 }
//	    }
//	  }
//	  species "bug" "animal" {}
//	}
//
// A species block may carry a second label naming its parent. Blocks found
// outside a model block are added to the model directly, so a model can be
// split across files.
package hcl
