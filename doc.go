// Package cymo uploads a local file tree to an FTP server over several
// concurrent sessions.
//
// # Overview
//
// A run enumerates the regular files under Config.LocalRoot (depth first,
// hidden entries skipped), splits them into one contiguous share per
// worker, and gives each worker its own FTP session. A session logs in,
// enters Config.RemoteRoot, then for every file of its share recreates the
// file's parent directory remotely and stores the file, retrying failed
// files up to Config.RetryLimit times.
//
// Failures never abort the run. A worker whose session cannot be
// established fails its whole share; a file that exhausts its retries is
// failed on its own. Both end up in the Report, whose Uploaded and Failed
// counts always add up to Found.
//
// # Basic Usage
//
//	report, err := cymo.Run(ctx, cymo.Config{
//	    Server:     "ftp.example.com",
//	    Username:   "deploy",
//	    Password:   os.Getenv("FTP_PASSWORD"),
//	    LocalRoot:  "./public",
//	    RemoteRoot: "/www",
//	    Workers:    4,
//	    RetryLimit: 2,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, f := range report.Failures {
//	    log.Printf("%s: %v", f.Task.RelPath, f.Err)
//	}
//
// # Transfer Modes
//
// Each file is classified from its first 512 bytes. Files detected as text
// are sent in ASCII mode, everything else in binary mode. Use
// WithClassifier(FixedClassifier(Binary)) to send everything as is.
//
// # Extension Points
//
// The transport (WithDialer), the local filesystem (WithFilesystem), the
// file enumeration (WithEnumerator) and progress reporting (WithObserver)
// can all be replaced, which is how the tests run without a network.
package cymo
