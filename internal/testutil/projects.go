package testutil

// Container solution: a root config that only aggregates references, a
// composite library bundled with outFile, and two executables that
// prepend it.
const (
	ContainerRoot          = "/user/username/projects/container"
	ContainerConfig        = ContainerRoot + "/tsconfig.json"
	ContainerLibConfig     = ContainerRoot + "/lib/tsconfig.json"
	ContainerLibIndex      = ContainerRoot + "/lib/index.ts"
	ContainerExecConfig    = ContainerRoot + "/exec/tsconfig.json"
	ContainerExecIndex     = ContainerRoot + "/exec/index.ts"
	ContainerCompConfig    = ContainerRoot + "/compositeExec/tsconfig.json"
	ContainerCompIndex     = ContainerRoot + "/compositeExec/index.ts"
	ContainerBuiltDir      = ContainerRoot + "/built/local"
	ContainerLibBundleDTS  = ContainerBuiltDir + "/lib.d.ts"
	ContainerCompBundleDTS = ContainerBuiltDir + "/compositeExec.d.ts"
)

// ContainerLibSource declares myConst on line 2, column 18.
const ContainerLibSource = "namespace container {\n    export const myConst = 30;\n}\n"

// ContainerExecSource uses myConst on line 3, column 16.
const ContainerExecSource = "namespace container {\n    export function getMyConst() {\n        return myConst;\n    }\n}\n"

// ContainerFiles returns the container solution plus the lib file.
func ContainerFiles() map[string]string {
	return map[string]string{
		LibPath: LibContent,
		ContainerConfig: `{
    "files": [],
    "include": [],
    "references": [
        { "path": "./exec" },
        { "path": "./compositeExec" }
    ]
}`,
		ContainerLibConfig: `{
    "compilerOptions": {
        "outFile": "../built/local/lib.js",
        "composite": true,
        "declarationMap": true
    },
    "references": [],
    "files": ["index.ts"]
}`,
		ContainerLibIndex: ContainerLibSource,
		ContainerExecConfig: `{
    "compilerOptions": {
        "outFile": "../built/local/exec.js"
    },
    "files": ["index.ts"],
    "references": [
        { "path": "../lib", "prepend": true }
    ]
}`,
		ContainerExecIndex: ContainerExecSource,
		ContainerCompConfig: `{
    "compilerOptions": {
        "outFile": "../built/local/compositeExec.js",
        "composite": true,
        "declarationMap": true
    },
    "files": ["index.ts"],
    "references": [
        { "path": "../lib", "prepend": true }
    ]
}`,
		ContainerCompIndex: ContainerExecSource,
	}
}

// A main project importing five functions from a composite dependency
// through a differently cased module specifier.
const (
	FnsRoot       = "/user/username/projects/myproject"
	FnsDepDir     = FnsRoot + "/dependency"
	FnsDepSource  = FnsDepDir + "/FnS.ts"
	FnsDepConfig  = FnsDepDir + "/tsconfig.json"
	FnsDepDTS     = FnsDepDir + "/fns.d.ts"
	FnsMainDir    = FnsRoot + "/main"
	FnsMainSource = FnsMainDir + "/main.ts"
	FnsMainConfig = FnsMainDir + "/tsconfig.json"
)

// FnsFiles returns the fns project plus the lib file.
func FnsFiles() map[string]string {
	return map[string]string{
		LibPath: LibContent,
		FnsDepSource: `export function fn1() { }
export function fn2() { }
export function fn3() { }
export function fn4() { }
export function fn5() { }`,
		FnsDepConfig: `{"compilerOptions":{"composite":true,"declarationMap":true}}`,
		FnsMainSource: `import {
    fn1, fn2, fn3, fn4, fn5
} from '../dependency/fns'

fn1();
fn2();
fn3();
fn4();
fn5();`,
		FnsMainConfig: `{"compilerOptions":{"composite":true,"declarationMap":true},"references":[{"path":"../dependency"}]}`,
	}
}
