package espfs

import "strings"

// prelude defines the helper functions every Command calls. It runs as one
// paste-mode transaction and prints nothing on success.
//
// Helpers print result lines, tab separated, or a single status line
// starting with "!". Stat mode bit 0x4000 marks directories.
const prelude = `try:
 import os
except ImportError:
 import uos as os
try:
 import binascii
except ImportError:
 import ubinascii as binascii
def _esp_kind(p):
 try:
  return os.stat(p)[0]&0x4000
 except OSError:
  return None
def _esp_stat(p):
 try:
  s=os.stat(p)
 except OSError:
  print('!ENOENT')
  return
 print('D' if s[0]&0x4000 else 'F',s[6],sep='\t')
def _esp_ls(p):
 k=_esp_kind(p)
 if k is None:
  print('!ENOENT')
  return
 if not k:
  print('!ENOTDIR')
  return
 for e in os.ilistdir(p):
  print(e[0]+('/' if e[1]&0x4000 else ''),e[3] if len(e)>3 else 0,sep='\t')
 print('!OK')
def _esp_mkdir(p,parents):
 k=_esp_kind(p)
 if k is not None:
  print('!OK' if parents and k else ('!ENOTDIR' if parents else '!EEXIST'))
  return
 if not parents:
  try:
   os.mkdir(p)
  except OSError:
   print('!ENOENT')
   return
  print('!OK')
  return
 q=''
 for c in p[1:].split('/'):
  q+='/'+c
  k=_esp_kind(q)
  if k is None:
   os.mkdir(q)
  elif not k:
   print('!ENOTDIR')
   return
 print('!OK')
def _esp_rmdir(p):
 k=_esp_kind(p)
 if k is None:
  print('!ENOENT')
  return
 if not k:
  print('!ENOTDIR')
  return
 os.rmdir(p)
 print('!OK')
def _esp_rm(p):
 k=_esp_kind(p)
 if k is None:
  print('!ENOENT')
  return
 if k:
  print('!EISDIR')
  return
 os.remove(p)
 print('!OK')
def _esp_put(p,a,b):
 if _esp_kind(p):
  print('!EISDIR')
  return
 try:
  f=open(p,'ab' if a else 'wb')
 except OSError:
  print('!ENOENT')
  return
 try:
  print(f.write(binascii.a2b_base64(b)))
 finally:
  f.close()
def _esp_get(p,o,n):
 k=_esp_kind(p)
 if k is None:
  print('!ENOENT')
  return
 if k:
  print('!EISDIR')
  return
 with open(p,'rb') as f:
  f.seek(o)
  print(binascii.b2a_base64(f.read(n)).decode().strip())
`

// preludeMarker identifies the prelude transaction.
const preludeMarker = "def _esp_stat("

// preludeLines returns the prelude as paste-mode lines.
func preludeLines() []string {
	return strings.Split(strings.TrimSuffix(prelude, "\n"), "\n")
}
