/*

Process of compilation

Program Text ->
	parse ->
S-Expressions (sexp) ->
	front ->
Abstract Syntax Tree (ast) ->
	back ->
Instructions (asm) ->
	asm.Format ->
Assembly Text (nasm) ->
	nasm, link with runtime ->
Binary Executable

Instructions (asm) ->
	vm ->
Result Value

*/
package compiler
